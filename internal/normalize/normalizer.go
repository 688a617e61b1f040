package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/airline"
	"github.com/flightpipe-io/flightpipe/internal/config"
	"github.com/flightpipe-io/flightpipe/internal/objectstore"
	"github.com/flightpipe-io/flightpipe/internal/partition"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

// Airline identity columns set on every row.
const (
	ColumnAirlineName = "airline_name"
	ColumnAirlineIATA = "airline_iata"
)

var (
	// DroppedColumns are removed from every table when present.
	DroppedColumns = []string{
		"aircraft",
		"live",
		"departure_estimated_runway",
		"departure_actual_runway",
		"arrival_estimated_runway",
		"arrival_actual_runway",
	}

	// TimestampColumns are coerced to dates/times when present.
	TimestampColumns = []string{
		"flight_date",
		"departure_scheduled",
		"departure_estimated",
		"departure_actual",
		"arrival_scheduled",
		"arrival_estimated",
		"arrival_actual",
	}
)

type (
	// Config holds normalizer settings.
	Config struct {
		ParquetExport bool
	}

	// Normalizer turns raw payloads into per-airline and combined CSVs.
	Normalizer struct {
		store         objectstore.Store
		logger        *slog.Logger
		parquetExport bool
	}

	// Option configures optional Normalizer behavior.
	Option func(*Normalizer)
)

// LoadConfig reads PARQUET_EXPORT.
func LoadConfig() Config {
	return Config{ParquetExport: config.GetEnvBool("PARQUET_EXPORT", false)}
}

// WithLogger sets the normalizer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// WithParquetExport also writes the combined table as parquet when enabled.
func WithParquetExport(enabled bool) Option {
	return func(n *Normalizer) {
		n.parquetExport = enabled
	}
}

// New creates a Normalizer.
func New(store objectstore.Store, opts ...Option) *Normalizer {
	n := &Normalizer{
		store:  store,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Normalize flattens one airline's payload into a tagged table.
// An empty table means the payload held no flight records.
func Normalize(payload []byte, a airline.Airline) (*Table, error) {
	table, err := FlattenPayload(payload)
	if err != nil {
		return nil, err
	}

	if table.Empty() {
		return table, nil
	}

	table.Drop(DroppedColumns...)
	CoerceTimestamps(table, TimestampColumns...)
	table.SetConstant(ColumnAirlineName, a.Name)
	table.SetConstant(ColumnAirlineIATA, a.Code)

	return table, nil
}

// NormalizeAll processes every airline in registry order, then writes the
// combined table when any airline produced rows.
func (n *Normalizer) NormalizeAll(ctx context.Context, registry *airline.Registry, runTime time.Time) []pipeline.Outcome {
	outcomes := make([]pipeline.Outcome, 0, registry.Len()+1)
	combined := NewTable()

	for _, a := range registry.All() {
		outcome, table := n.normalizeAirline(ctx, a, runTime)
		outcomes = append(outcomes, outcome)

		if table != nil {
			combined.Concat(table)
		}
	}

	if combined.Empty() {
		n.logger.Info("No rows to combine", slog.String("run_date", runTime.UTC().Format(dateLayout)))

		return outcomes
	}

	outcomes = append(outcomes, n.writeCombined(ctx, combined, runTime))

	if n.parquetExport {
		outcomes = append(outcomes, n.writeParquet(ctx, combined, runTime))
	}

	return outcomes
}

// Stage adapts the normalizer to the pipeline runner.
func (n *Normalizer) Stage(registry *airline.Registry) pipeline.StageFunc {
	return func(ctx context.Context, run pipeline.Run) []pipeline.Outcome {
		return n.NormalizeAll(ctx, registry, run.Time)
	}
}

// normalizeAirline returns the airline's outcome and, on success, its table.
func (n *Normalizer) normalizeAirline(ctx context.Context, a airline.Airline, runTime time.Time) (pipeline.Outcome, *Table) {
	rawKey := partition.RawKey(runTime, a.Code)

	payload, err := n.store.Get(ctx, rawKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		return pipeline.NoRawData(a, rawKey), nil
	}

	if err != nil {
		return pipeline.Failure(pipeline.StageNormalize, a, fmt.Errorf("failed to read %s: %w", rawKey, err)), nil
	}

	table, err := Normalize(payload, a)
	if err != nil {
		return pipeline.Failure(pipeline.StageNormalize, a, fmt.Errorf("failed to parse %s: %w", rawKey, err)), nil
	}

	if table.Empty() {
		return pipeline.NoFlights(a, rawKey), nil
	}

	key := partition.ProcessedKey(runTime, a.Code)

	body, err := EncodeCSV(table)
	if err != nil {
		return pipeline.Failure(pipeline.StageNormalize, a, err), nil
	}

	if err := n.store.Put(ctx, key, body, objectstore.ContentTypeCSV); err != nil {
		return pipeline.Failure(pipeline.StageNormalize, a, err), nil
	}

	n.logger.Debug("Stored processed flights",
		slog.String("airline", a.Name),
		slog.String("code", a.Code),
		slog.String("key", key),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.columns)),
	)

	return pipeline.Stored(pipeline.StageNormalize, a, key, table.Len()), table
}

func (n *Normalizer) writeCombined(ctx context.Context, combined *Table, runTime time.Time) pipeline.Outcome {
	key := partition.CombinedKey(runTime)

	body, err := EncodeCSV(combined)
	if err != nil {
		return pipeline.CombinedFailure(key, err)
	}

	if err := n.store.Put(ctx, key, body, objectstore.ContentTypeCSV); err != nil {
		return pipeline.CombinedFailure(key, err)
	}

	return pipeline.CombinedStored(key, combined.Len())
}

func (n *Normalizer) writeParquet(ctx context.Context, combined *Table, runTime time.Time) pipeline.Outcome {
	key := partition.CombinedParquetKey(runTime)

	body, err := EncodeParquet(combined)
	if err != nil {
		return pipeline.CombinedFailure(key, err)
	}

	if err := n.store.Put(ctx, key, body, objectstore.ContentTypeParquet); err != nil {
		return pipeline.CombinedFailure(key, err)
	}

	return pipeline.CombinedStored(key, combined.Len())
}
