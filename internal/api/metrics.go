package api

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/process"
)

const bytesPerMB = 1024 * 1024

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	RunID         string         `json:"run_id"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Process       ProcessMetrics `json:"process"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Records       RecordMetrics  `json:"records"`
	Sinks         []SinkMetrics  `json:"sinks"`
	Stream        StreamMetrics  `json:"stream"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// ProcessMetrics contains OS-level statistics for this process.
type ProcessMetrics struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSMB      float64 `json:"rss_mb"`
}

// SinkMetrics describes one record file and the filesystem holding it.
type SinkMetrics struct {
	Path            string  `json:"path"`
	SizeBytes       int64   `json:"size_bytes"`
	DiskFreeMB      float64 `json:"disk_free_mb"`
	DiskUsedPercent float64 `json:"disk_used_percent"`
}

// MQTTMetrics contains broker connection state.
type MQTTMetrics struct {
	Broker    string `json:"broker"`
	Connected bool   `json:"connected"`
}

// RecordMetrics contains sink record counters.
type RecordMetrics struct {
	MessagesLogged uint64 `json:"messages_logged"`
	ErrorsLogged   uint64 `json:"errors_logged"`
}

// StreamMetrics contains record stream hub statistics.
type StreamMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleMetrics returns process and record statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		RunID:         s.runID,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Process: s.processMetrics(),
		Sinks:   s.sinkMetrics(),
		MQTT: MQTTMetrics{
			Broker:    s.broker.Broker(),
			Connected: s.broker.HealthCheck(r.Context()) == nil,
		},
		Records: RecordMetrics{
			MessagesLogged: s.stats.MessagesLogged(),
			ErrorsLogged:   s.stats.ErrorsLogged(),
		},
		Stream: StreamMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	writeJSON(w, http.StatusOK, metrics)
}

// processMetrics reads CPU and memory usage of the current process. Fields
// that cannot be read are left zero.
func (s *Server) processMetrics() ProcessMetrics {
	pid := int32(os.Getpid()) //nolint:gosec // PIDs fit in int32 on supported platforms
	m := ProcessMetrics{PID: pid}

	proc, err := process.NewProcess(pid)
	if err != nil {
		s.logger.Debug("reading process stats failed", "error", err)
		return m
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		m.CPUPercent = cpu
	} else {
		s.logger.Debug("reading process CPU failed", "error", err)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		m.RSSMB = float64(mem.RSS) / bytesPerMB
	} else {
		s.logger.Debug("reading process memory failed", "error", err)
	}
	return m
}

// sinkMetrics reports the size of each record file and the free space left
// on its filesystem.
func (s *Server) sinkMetrics() []SinkMetrics {
	out := make([]SinkMetrics, 0, len(s.sinkPaths))
	for _, path := range s.sinkPaths {
		m := SinkMetrics{Path: path}
		if info, err := os.Stat(path); err == nil {
			m.SizeBytes = info.Size()
		}
		if usage, err := disk.Usage(filepath.Dir(path)); err == nil {
			m.DiskFreeMB = float64(usage.Free) / bytesPerMB
			m.DiskUsedPercent = usage.UsedPercent
		} else {
			s.logger.Debug("reading disk usage failed", "path", path, "error", err)
		}
		out = append(out, m)
	}
	return out
}
