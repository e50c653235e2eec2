package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the broker check made by GET /health.
const healthCheckTimeout = 2 * time.Second

// Health status values.
const (
	StatusOK           = "ok"
	StatusDisconnected = "disconnected"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	RunID          string `json:"run_id"`
	Broker         string `json:"broker"`
	MessagesLogged uint64 `json:"messages_logged"`
	ErrorsLogged   uint64 `json:"errors_logged"`
	Error          string `json:"error,omitempty"`
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/stream", s.handleStream)

	return r
}

// handleHealth reports 200 while the broker connection is up and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:         StatusOK,
		Version:        s.version,
		RunID:          s.runID,
		Broker:         s.broker.Broker(),
		MessagesLogged: s.stats.MessagesLogged(),
		ErrorsLogged:   s.stats.ErrorsLogged(),
	}

	status := http.StatusOK
	if err := s.broker.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		resp.Status = StatusDisconnected
		resp.Error = err.Error()
	}

	writeJSON(w, status, resp)
}
