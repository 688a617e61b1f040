package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/api/middleware"
	"github.com/flightpipe-io/flightpipe/internal/storage"
)

const (
	healthCheckTimeout     = 2 * time.Second
	contentTypeJSON        = "application/json"
	contentTypeProblemJSON = "application/problem+json"
	maxRunLimit            = 500
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string   `json:"status"`
		ServiceName string   `json:"serviceName"`
		Version     string   `json:"version"`
		Uptime      string   `json:"uptime,omitempty"`
		Stages      []string `json:"stages"`
	}

	// RunsResponse is the body of GET /api/v1/runs.
	RunsResponse struct {
		Runs []storage.RunSummary `json:"runs"`
	}
)

// setupRoutes registers every route and returns the public paths, which
// bypass authentication and rate limiting.
func (s *Server) setupRoutes(mux *http.ServeMux) middleware.PublicPaths {
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)

	mux.HandleFunc("POST /api/v1/stages/{stage}", s.handleTriggerStage)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)

	return middleware.NewPublicPaths("/ping", "/ready", "/health")
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady answers 503 while the run ledger is unreachable. Without a
// ledger the server is always ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Error("Ledger health check failed",
				slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
				slog.String("error", err.Error()),
			)

			WriteErrorResponse(w, r, s.logger, ServiceUnavailable("run ledger unavailable"))

			return
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: "flightpipe",
		Version:     s.version,
		Uptime:      uptime,
		Stages:      s.Stages(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// handleListRuns serves GET /api/v1/runs?limit=N, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("run ledger is not configured"))

		return
	}

	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunLimit {
			WriteErrorResponse(w, r, s.logger, BadRequest("limit must be an integer between 1 and 500"))

			return
		}

		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to read the run ledger"))

		return
	}

	if runs == nil {
		runs = []storage.RunSummary{}
	}

	s.writeJSON(w, r, http.StatusOK, RunsResponse{Runs: runs})
}

// writeJSON marshals before writing headers so an encoding failure can still
// become a 500.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}
