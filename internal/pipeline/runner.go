package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

const defaultStageTimeout = 10 * time.Minute

type (
	// Run identifies one stage execution.
	Run struct {
		ID    uuid.UUID
		Stage Stage
		// Time is the UTC run timestamp partition keys derive from.
		Time time.Time
	}

	// StageFunc executes a stage and returns one outcome per processed item.
	StageFunc func(ctx context.Context, run Run) []Outcome

	// Handler is the invocation surface of a stage. The event carries trigger
	// metadata and is not interpreted.
	Handler func(ctx context.Context, event json.RawMessage) Result

	// Report summarises a finished stage execution for the ledger,
	// notifications and metrics.
	Report struct {
		RunID      uuid.UUID `json:"runId"`
		Stage      Stage     `json:"stage"`
		RunDate    string    `json:"runDate"`
		StartedAt  time.Time `json:"startedAt"`
		FinishedAt time.Time `json:"finishedAt"`
		StatusCode int       `json:"statusCode"`
		Outcomes   []Outcome `json:"outcomes"`
	}

	// Recorder persists reports (the run ledger).
	Recorder interface {
		RecordRun(ctx context.Context, report *Report) error
	}

	// Publisher announces reports to downstream consumers.
	Publisher interface {
		Publish(ctx context.Context, report *Report) error
	}

	// Observer turns reports into metrics.
	Observer interface {
		Observe(ctx context.Context, report *Report)
	}

	// Runner wraps stages with run identity, a deadline and reporting.
	Runner struct {
		logger    *slog.Logger
		timeout   time.Duration
		now       func() time.Time
		runTime   time.Time
		recorder  Recorder
		publisher Publisher
		observer  Observer
	}

	// RunnerOption configures optional Runner behavior.
	RunnerOption func(*Runner)
)

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTimeout bounds each stage execution. Zero or negative disables the deadline.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// WithRunTime pins the partition timestamp of every run. Stages executed back
// to back then read and write the same date even across midnight.
func WithRunTime(t time.Time) RunnerOption {
	return func(r *Runner) {
		r.runTime = t.UTC()
	}
}

// WithRecorder enables the run ledger.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithPublisher enables report publishing.
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) {
		r.publisher = p
	}
}

// WithObserver enables metrics.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = o
	}
}

// NewRunner creates a Runner. Without options it logs JSON to stdout and applies
// a 10 minute stage deadline.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		timeout: defaultStageTimeout,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Handler adapts fn into the invocation surface for stage.
func (r *Runner) Handler(stage Stage, fn StageFunc) Handler {
	return func(ctx context.Context, event json.RawMessage) Result {
		result, _ := r.Execute(ctx, stage, fn, event)

		return result
	}
}

// Execute runs fn once and returns its result along with the report that was
// recorded, published and observed. Reporting failures are logged only: they
// never change the stage result.
func (r *Runner) Execute(ctx context.Context, stage Stage, fn StageFunc, event json.RawMessage) (Result, *Report) {
	startedAt := r.now().UTC()

	runTime := startedAt
	if !r.runTime.IsZero() {
		runTime = r.runTime
	}

	run := Run{ID: uuid.New(), Stage: stage, Time: runTime}

	logger := r.logger.With(
		slog.String("stage", string(stage)),
		slog.String("run_id", run.ID.String()),
	)

	logger.Info("Stage started",
		slog.String("run_date", runTime.Format(time.DateOnly)),
		slog.Int("event_bytes", len(event)),
	)

	stageCtx := ctx

	if r.timeout > 0 {
		var cancel context.CancelFunc

		stageCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	outcomes := fn(stageCtx, run)
	result := NewResult(stage, outcomes)

	report := &Report{
		RunID:      run.ID,
		Stage:      stage,
		RunDate:    runTime.Format(time.DateOnly),
		StartedAt:  startedAt,
		FinishedAt: r.now().UTC(),
		StatusCode: result.StatusCode,
		Outcomes:   outcomes,
	}

	for _, o := range outcomes {
		level := slog.LevelInfo
		if o.Failed() {
			level = slog.LevelWarn
		}

		logger.Log(ctx, level, o.String(),
			slog.String("status", string(o.Status)),
			slog.String("code", o.Code),
			slog.String("key", o.Key),
			slog.Int("rows", o.Rows),
		)
	}

	counts := CountByStatus(outcomes)
	logger.Info("Stage finished",
		slog.Int("status_code", result.StatusCode),
		slog.Int("succeeded", counts[StatusSuccess]),
		slog.Int("skipped", counts[StatusSkipped]),
		slog.Int("failed", counts[StatusFailed]),
		slog.Duration("duration", report.Duration()),
	)

	r.report(ctx, logger, report)

	return result, report
}

// report fans the report out to the optional sinks. It uses the caller's
// context, not the stage deadline, so a slow stage doesn't starve the ledger.
func (r *Runner) report(ctx context.Context, logger *slog.Logger, report *Report) {
	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, report); err != nil {
			logger.Error("Failed to record run", slog.String("error", err.Error()))
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, report); err != nil {
			logger.Error("Failed to publish stage report", slog.String("error", err.Error()))
		}
	}

	if r.observer != nil {
		r.observer.Observe(ctx, report)
	}
}
