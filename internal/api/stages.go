package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flightpipe-io/flightpipe/internal/api/middleware"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

var (
	errInvalidEvent   = errors.New("event body must be valid JSON")
	errNotJSON        = errors.New("event body must be application/json")
	errEventTooLarge  = errors.New("event body too large")
	emptyTriggerEvent = json.RawMessage(`{}`)
)

// handleTriggerStage runs one stage and answers with its Result. The HTTP
// status mirrors Result.StatusCode.
func (s *Server) handleTriggerStage(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())
	stage := pipeline.Stage(r.PathValue("stage"))

	handle, ok := s.stages[stage]
	if !ok {
		WriteErrorResponse(w, r, s.logger, NotFound(fmt.Sprintf("unknown stage %q", stage)))

		return
	}

	event, err := readEvent(w, r, s.config.MaxRequestSize)
	if err != nil {
		switch {
		case errors.Is(err, errEventTooLarge):
			WriteErrorResponse(w, r, s.logger, RequestEntityTooLarge(err.Error()))
		case errors.Is(err, errNotJSON):
			WriteErrorResponse(w, r, s.logger, UnsupportedMediaType(err.Error()))
		default:
			WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		}

		return
	}

	if !s.running.TryLock() {
		WriteErrorResponse(w, r, s.logger, Conflict("another stage is already running"))

		return
	}
	defer s.running.Unlock()

	s.logger.Info("Stage triggered",
		slog.String("stage", string(stage)),
		slog.String("correlation_id", correlationID),
	)

	// A caller that hangs up must not abort a half-written batch; the runner's
	// own deadline still applies.
	result := handle(context.WithoutCancel(r.Context()), event)

	middleware.Annotate(r.Context(),
		slog.String("stage", string(stage)),
		slog.Int("stage_status", result.StatusCode),
	)

	s.writeJSON(w, r, result.StatusCode, result)
}

// readEvent returns the request body as the trigger event. An empty body is
// the empty object.
func readEvent(w http.ResponseWriter, r *http.Request, limit int64) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w: limit is %d bytes", errEventTooLarge, maxErr.Limit)
		}

		return nil, fmt.Errorf("failed to read event body: %w", err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return emptyTriggerEvent, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" && !hasJSONContentType(ct) {
		return nil, errNotJSON
	}

	if !json.Valid(body) {
		return nil, errInvalidEvent
	}

	return body, nil
}

// hasJSONContentType accepts charset parameters, e.g. "application/json; charset=utf-8".
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), contentTypeJSON)
}
