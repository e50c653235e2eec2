// Package logging provides the operational logger for statuslogger.
//
// It wraps log/slog. The operational logger reports what the process is doing
// (startup, reconnect scheduling, HTTP requests, shutdown). It is separate
// from internal/sink, which holds the message and error records themselves.
//
// Every entry carries service=statuslogger and the build version; the binary
// adds run_id once configuration is loaded.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout, discard
//
// # Usage
//
//	log := logging.New(cfg.Logging, version).With("run_id", runID)
//	log.Warn("reconnect scheduled", "attempt", n, "delay", d)
package logging
