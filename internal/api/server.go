package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/statuslogger/internal/infrastructure/config"
	"github.com/nerrad567/statuslogger/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// HTTP server timeouts.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// BrokerStatus reports the state of the broker connection.
// *mqtt.Client implements it.
type BrokerStatus interface {
	HealthCheck(ctx context.Context) error
	Broker() string
}

// StatsProvider reports record counters. *subscriber.Handler implements it.
type StatsProvider interface {
	MessagesLogged() uint64
	ErrorsLogged() uint64
}

// Deps holds the dependencies required by the HTTP server.
type Deps struct {
	Config  config.HealthConfig
	Logger  *logging.Logger
	Broker  BrokerStatus
	Stats   StatsProvider
	Hub     *Hub // optional; a hub is created when nil
	Version string
	RunID   string

	// SinkPaths lists the record files reported by GET /metrics.
	SinkPaths []string
}

// Server serves the health, metrics and record stream endpoints.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.HealthConfig
	logger    *logging.Logger
	broker    BrokerStatus
	stats     StatsProvider
	hub       *Hub
	version   string
	runID     string
	sinkPaths []string
	startTime time.Time

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new HTTP server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("broker status is required")
	}
	if deps.Stats == nil {
		return nil, fmt.Errorf("stats provider is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		broker:    deps.Broker,
		stats:     deps.Stats,
		hub:       hub,
		version:   deps.Version,
		runID:     deps.RunID,
		sinkPaths: deps.SinkPaths,
		startTime: time.Now(),
	}, nil
}

// Hub returns the record stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine. Binding
// errors (port in use, etc.) are returned directly.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("HTTP server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server, waiting up to five seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
