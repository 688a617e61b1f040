package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

const (
	pqUniqueViolation     = "23505"
	defaultRecentRunLimit = 20
)

var (
	// ErrRunAlreadyRecorded is returned when a run ID is recorded twice.
	ErrRunAlreadyRecorded = errors.New("run already recorded")
	// ErrRunStoreFailed is returned when writing to the ledger fails.
	ErrRunStoreFailed = errors.New("run ledger write failed")

	_ pipeline.Recorder = (*RunStore)(nil)
)

type (
	// RunStore is the PostgreSQL run ledger: one pipeline_runs row per stage
	// execution and one run_outcomes row per outcome.
	RunStore struct {
		conn   *Connection
		logger *slog.Logger
	}

	// RunStoreOption configures optional RunStore behavior.
	RunStoreOption func(*RunStore)

	// RunSummary is a ledger row with its outcome tallies.
	RunSummary struct {
		RunID      uuid.UUID      `json:"runId"`
		Stage      pipeline.Stage `json:"stage"`
		RunDate    time.Time      `json:"runDate"`
		StartedAt  time.Time      `json:"startedAt"`
		FinishedAt time.Time      `json:"finishedAt"`
		StatusCode int            `json:"statusCode"`
		Succeeded  int            `json:"succeeded"`
		Skipped    int            `json:"skipped"`
		Failed     int            `json:"failed"`
	}
)

// WithRunStoreLogger sets the store's logger.
func WithRunStoreLogger(logger *slog.Logger) RunStoreOption {
	return func(s *RunStore) {
		s.logger = logger
	}
}

// NewRunStore creates a ledger over conn.
func NewRunStore(conn *Connection, opts ...RunStoreOption) (*RunStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	s := &RunStore{
		conn:   conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// RecordRun writes the report and its outcomes in one transaction.
func (s *RunStore) RecordRun(ctx context.Context, report *pipeline.Report) error {
	startTime := time.Now()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrRunStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, stage, run_date, started_at, finished_at, status_code)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		report.RunID,
		string(report.Stage),
		report.RunDate,
		report.StartedAt,
		report.FinishedAt,
		report.StatusCode,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: %s", ErrRunAlreadyRecorded, report.RunID)
		}

		return fmt.Errorf("%w: insert run: %w", ErrRunStoreFailed, err)
	}

	for i, o := range report.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_outcomes
				(run_id, position, airline_name, airline_code, status, object_key, row_count, checksum, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			report.RunID,
			i,
			nullableString(o.Airline),
			nullableString(o.Code),
			string(o.Status),
			nullableString(o.Key),
			o.Rows,
			nullableString(o.Checksum),
			o.Message,
		)
		if err != nil {
			return fmt.Errorf("%w: insert outcome %d: %w", ErrRunStoreFailed, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrRunStoreFailed, err)
	}

	s.logger.Debug("Run recorded",
		slog.String("run_id", report.RunID.String()),
		slog.String("stage", string(report.Stage)),
		slog.Int("outcomes", len(report.Outcomes)),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()),
	)

	return nil
}

// RecentRuns returns the latest runs, newest first. A non-positive limit uses 20.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = defaultRecentRunLimit
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.run_id, r.stage, r.run_date, r.started_at, r.finished_at, r.status_code,
			COUNT(o.run_id) FILTER (WHERE o.status = 'success'),
			COUNT(o.run_id) FILTER (WHERE o.status = 'skipped'),
			COUNT(o.run_id) FILTER (WHERE o.status = 'failed')
		FROM pipeline_runs r
		LEFT JOIN run_outcomes o ON o.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var runs []RunSummary

	for rows.Next() {
		var (
			run   RunSummary
			stage string
		)

		err := rows.Scan(
			&run.RunID,
			&stage,
			&run.RunDate,
			&run.StartedAt,
			&run.FinishedAt,
			&run.StatusCode,
			&run.Succeeded,
			&run.Skipped,
			&run.Failed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Stage = pipeline.Stage(stage)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return runs, nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
