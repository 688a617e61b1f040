package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

const driverName = "snowflake"

// COPY INTO result statuses for a file that lost rows.
const (
	filePartiallyLoaded = "PARTIALLY_LOADED"
	fileLoadFailed      = "LOAD_FAILED"
)

type (
	// Connector opens a database handle for cfg.
	Connector func(ctx context.Context, cfg *Config) (*sql.DB, error)

	// FileResult is one row of a COPY INTO result.
	FileResult struct {
		File       string
		Status     string
		RowsParsed int64
		RowsLoaded int64
		ErrorsSeen int64
		FirstError string
	}

	// CopyResult summarises a COPY INTO execution.
	CopyResult struct {
		Files []FileResult
	}

	// Loader runs the staging bulk copy.
	Loader struct {
		cfg     *Config
		connect Connector
		logger  *slog.Logger
	}

	// Option configures optional Loader behavior.
	Option func(*Loader)
)

// RowsLoaded totals loaded rows across files.
func (r CopyResult) RowsLoaded() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.RowsLoaded
	}

	return total
}

// SnowflakeConnector opens a gosnowflake handle and verifies it with a ping.
func SnowflakeConnector(ctx context.Context, cfg *Config) (*sql.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("failed to build DSN: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// WithConnector replaces the Snowflake connector.
func WithConnector(connect Connector) Option {
	return func(l *Loader) {
		l.connect = connect
	}
}

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a Loader.
func New(cfg *Config, opts ...Option) *Loader {
	l := &Loader{
		cfg:     cfg,
		connect: SnowflakeConnector,
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoadStaging copies every staged file matching the pattern into the staging
// table. Errors are logged and reported in the outcome, never returned.
func (l *Loader) LoadStaging(ctx context.Context) pipeline.Outcome {
	result, err := l.copyInto(ctx)
	if err != nil {
		var sfErr *gosnowflake.SnowflakeError
		if errors.As(err, &sfErr) {
			l.logger.Error("Snowflake error during load",
				slog.Int("number", sfErr.Number),
				slog.String("sql_state", sfErr.SQLState),
				slog.String("query_id", sfErr.QueryID),
				slog.String("error", err.Error()),
			)

			return l.failure("Snowflake error: " + err.Error())
		}

		l.logger.Error("Unexpected error during load", slog.String("error", err.Error()))

		return l.failure("Unexpected error: " + err.Error())
	}

	for _, f := range result.Files {
		if f.Status == filePartiallyLoaded || f.Status == fileLoadFailed {
			l.logger.Warn("Rows skipped during load",
				slog.String("file", f.File),
				slog.String("status", f.Status),
				slog.Int64("rows_parsed", f.RowsParsed),
				slog.Int64("rows_loaded", f.RowsLoaded),
				slog.Int64("errors_seen", f.ErrorsSeen),
				slog.String("first_error", f.FirstError),
			)
		}
	}

	rows := result.RowsLoaded()

	l.logger.Info("Staging load complete",
		slog.String("table", l.cfg.Table),
		slog.Int("files", len(result.Files)),
		slog.Int64("rows_loaded", rows),
	)

	return pipeline.Outcome{
		Stage:  pipeline.StageLoad,
		Status: pipeline.StatusSuccess,
		Key:    l.cfg.Table,
		Rows:   int(rows),
		Message: fmt.Sprintf("Data loaded into %s successfully. Files: %d, rows loaded: %d.",
			l.cfg.Table, len(result.Files), rows),
	}
}

// Stage adapts the loader to the pipeline runner.
func (l *Loader) Stage() pipeline.StageFunc {
	return func(ctx context.Context, _ pipeline.Run) []pipeline.Outcome {
		return []pipeline.Outcome{l.LoadStaging(ctx)}
	}
}

func (l *Loader) failure(msg string) pipeline.Outcome {
	return pipeline.Outcome{
		Stage:   pipeline.StageLoad,
		Status:  pipeline.StatusFailed,
		Key:     l.cfg.Table,
		Message: msg,
	}
}

func (l *Loader) copyInto(ctx context.Context) (*CopyResult, error) {
	if err := l.cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := l.connect(ctx, l.cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	l.logger.Info("Copying staged files", slog.String("target", l.cfg.String()), slog.String("pattern", l.cfg.Pattern))

	rows, err := db.QueryContext(ctx, CopyStatement(l.cfg.Table, l.cfg.Stage, l.cfg.Pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCopyResult(rows)
}

// scanCopyResult reads COPY INTO result rows by column name. A stage with no
// new files yields a single status-only row and no file results.
func scanCopyResult(rows *sql.Rows) (*CopyResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &CopyResult{}

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))

	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan copy result: %w", err)
		}

		record := make(map[string]string, len(columns))
		for i, c := range columns {
			record[strings.ToLower(c)] = values[i].String
		}

		file, ok := record["file"]
		if !ok {
			continue
		}

		result.Files = append(result.Files, FileResult{
			File:       file,
			Status:     record["status"],
			RowsParsed: parseCount(record["rows_parsed"]),
			RowsLoaded: parseCount(record["rows_loaded"]),
			ErrorsSeen: parseCount(record["errors_seen"]),
			FirstError: record["first_error"],
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}

	return n
}
