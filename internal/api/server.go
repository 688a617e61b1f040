// Package api serves the stage handlers over HTTP so an external scheduler can
// trigger runs, and exposes the run ledger and health probes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/api/middleware"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
	"github.com/flightpipe-io/flightpipe/internal/storage"
)

type (
	// RunLister reads recent runs from the ledger.
	RunLister interface {
		RecentRuns(ctx context.Context, limit int) ([]storage.RunSummary, error)
	}

	// HealthChecker reports whether a backing dependency is reachable.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}

	// Server is the stage trigger HTTP server.
	Server struct {
		httpServer *http.Server
		logger     *slog.Logger
		config     *ServerConfig
		version    string
		startTime  time.Time

		stages  map[pipeline.Stage]pipeline.Handler
		runs    RunLister
		health  HealthChecker
		auth    *middleware.TokenAuthenticator
		limiter middleware.RateLimiter

		// running serializes triggers: at most one stage executes at a time.
		running sync.Mutex
	}

	// Option configures optional Server behavior.
	Option func(*Server)
)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithStage exposes handler at POST /api/v1/stages/{stage}.
func WithStage(stage pipeline.Stage, handler pipeline.Handler) Option {
	return func(s *Server) {
		s.stages[stage] = handler
	}
}

// WithRunLister enables GET /api/v1/runs.
func WithRunLister(runs RunLister) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

// WithHealthChecker makes /ready depend on checker.
func WithHealthChecker(checker HealthChecker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// WithTokenAuth requires a trigger token on non-public routes.
func WithTokenAuth(auth *middleware.TokenAuthenticator) Option {
	return func(s *Server) {
		s.auth = auth
	}
}

// WithRateLimiter limits non-public requests.
func WithRateLimiter(limiter middleware.RateLimiter) Option {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// NewServer creates the trigger server and its middleware stack.
//
// Middleware executes in the order listed:
//  1. CorrelationID - tag every response
//  2. Recovery - catch panics in everything downstream
//  3. TokenAuth - reject unauthenticated triggers (optional)
//  4. RateLimit - reject trigger floods before they reach a stage (optional)
//  5. RequestLogger - log requests that got through
func NewServer(cfg *ServerConfig, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		version: "dev",
		stages:  make(map[pipeline.Stage]pipeline.Handler),
	}

	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	public := s.setupRoutes(mux)

	if s.auth != nil {
		s.logger.Info("Trigger authentication enabled")
	} else {
		s.logger.Warn("Trigger token not configured - authentication disabled")
	}

	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(s.logger),
		middleware.WithTokenAuth(s.auth, public, s.logger),
		middleware.WithRateLimit(s.limiter, public, s.logger),
		middleware.WithRequestLogger(s.logger),
	)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Stages lists the stages the server can trigger, sorted.
func (s *Server) Stages() []string {
	names := make([]string, 0, len(s.stages))
	for stage := range s.stages {
		names = append(names, string(stage))
	}

	sort.Strings(names)

	return names
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting flightpipe trigger server",
			slog.String("address", s.config.Address()),
			slog.Any("stages", s.Stages()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		s.logger.Error("Server failed", slog.String("error", err.Error()))

		return err
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")

		return s.shutdown()
	}
}

// shutdown waits for in-flight triggers up to ShutdownTimeout.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
