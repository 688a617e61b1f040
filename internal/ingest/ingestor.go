// Package ingest implements the first pipeline stage: fetch each airline's
// current flights and land the raw JSON in the object store.
package ingest

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/flightpipe-io/flightpipe/internal/airline"
	"github.com/flightpipe-io/flightpipe/internal/objectstore"
	"github.com/flightpipe-io/flightpipe/internal/partition"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

// ChecksumMetadataKey is the object metadata key holding the payload checksum.
const ChecksumMetadataKey = "checksum"

// ErrInvalidPayload is returned when the API body is not valid JSON.
var ErrInvalidPayload = errors.New("response is not valid JSON")

type (
	// Fetcher retrieves the raw API response for one carrier code.
	Fetcher interface {
		FetchFlights(ctx context.Context, code string) ([]byte, error)
	}

	// Ingestor lands raw API payloads in the object store.
	Ingestor struct {
		fetcher Fetcher
		store   objectstore.Store
		logger  *slog.Logger
	}

	// Option configures optional Ingestor behavior.
	Option func(*Ingestor)
)

// WithLogger sets the ingestor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) {
		i.logger = logger
	}
}

// New creates an Ingestor.
func New(fetcher Fetcher, store objectstore.Store, opts ...Option) *Ingestor {
	i := &Ingestor{
		fetcher: fetcher,
		store:   store,
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// FetchAndStore fetches and stores every airline in registry order.
// It returns exactly one outcome per airline; a failing airline never stops
// the ones after it.
func (i *Ingestor) FetchAndStore(ctx context.Context, registry *airline.Registry, runTime time.Time) []pipeline.Outcome {
	outcomes := make([]pipeline.Outcome, 0, registry.Len())

	for _, a := range registry.All() {
		key := partition.RawKey(runTime, a.Code)

		checksum, err := i.ingestAirline(ctx, a, key)
		if err != nil {
			outcomes = append(outcomes, pipeline.Failure(pipeline.StageIngest, a, err))

			continue
		}

		outcome := pipeline.Stored(pipeline.StageIngest, a, key, 0)
		outcome.Checksum = checksum
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// Stage adapts the ingestor to the pipeline runner.
func (i *Ingestor) Stage(registry *airline.Registry) pipeline.StageFunc {
	return func(ctx context.Context, run pipeline.Run) []pipeline.Outcome {
		return i.FetchAndStore(ctx, registry, run.Time)
	}
}

func (i *Ingestor) ingestAirline(ctx context.Context, a airline.Airline, key string) (string, error) {
	body, err := i.fetcher.FetchFlights(ctx, a.Code)
	if err != nil {
		return "", err
	}

	payload, err := reserialize(body)
	if err != nil {
		return "", err
	}

	sum := blake2b.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])

	err = i.store.Put(ctx, key, payload, objectstore.ContentTypeJSON,
		objectstore.WithMetadata(map[string]string{ChecksumMetadataKey: checksum}))
	if err != nil {
		return "", err
	}

	i.logger.Debug("Stored raw flights",
		slog.String("airline", a.Name),
		slog.String("code", a.Code),
		slog.String("key", key),
		slog.Int("bytes", len(payload)),
	)

	return checksum, nil
}

// reserialize parses body and writes it back as compact JSON.
// Object key order is preserved: the normalize stage derives column order from it.
func reserialize(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, bytes.TrimSpace(body)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	return buf.Bytes(), nil
}
