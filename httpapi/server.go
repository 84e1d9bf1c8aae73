package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/coderun/assistant"
	"github.com/isdmx/coderun/config"
	"github.com/isdmx/coderun/language"
	"github.com/isdmx/coderun/metrics"
	"github.com/isdmx/coderun/sandbox"
)

// MaxBodyBytes bounds every request body
const MaxBodyBytes = 1 << 20

// Server is the HTTP front end of the execution service
type Server struct {
	logger    *zap.Logger
	port      int
	router    *chi.Mux
	srv       *http.Server
	executor  sandbox.SandboxExecutor
	registry  *language.Registry
	assistant assistant.Assistant
	metrics   *metrics.Collector
}

// New creates a Server and registers all routes
func New(
	cfg *config.Config,
	logger *zap.Logger,
	executor sandbox.SandboxExecutor,
	registry *language.Registry,
	asst assistant.Assistant,
	collector *metrics.Collector,
) *Server {
	s := &Server{
		logger:    logger,
		port:      cfg.Server.HTTPPort,
		router:    chi.NewRouter(),
		executor:  executor,
		registry:  registry,
		assistant: asst,
		metrics:   collector,
	}
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures middleware and handlers. The logger and metrics
// middleware sit outside Recoverer so that recovered panics are still
// logged and counted as 500s.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(requestMetrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(limitBody(MaxBodyBytes))

	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/execute", s.handleExecute)
		r.Get("/languages", s.handleLanguages)
	})
	s.router.Post("/run/{language}", s.handleRun)
	s.router.Post("/ai/ask", s.handleAsk)
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	s.logger.Info("starting HTTP API", zap.Int("port", s.port))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP API stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Stop waits for in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP API")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
