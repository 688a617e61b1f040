package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/flightpipe-io/flightpipe/internal/airline"
	"github.com/flightpipe-io/flightpipe/internal/objectstore"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

type fakeFetcher struct {
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) FetchFlights(_ context.Context, code string) ([]byte, error) {
	f.calls = append(f.calls, code)

	if err, ok := f.errs[code]; ok {
		return nil, err
	}

	return []byte(f.bodies[code]), nil
}

type failingStore struct {
	objectstore.Store
}

func (failingStore) Put(context.Context, string, []byte, string, ...objectstore.PutOption) error {
	return errors.New("bucket unavailable")
}

var runTime = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *airline.Registry {
	t.Helper()

	registry, err := airline.NewRegistry(
		airline.Airline{Name: "TestAir", Code: "TA"},
		airline.Airline{Name: "BrokenAir", Code: "BA"},
		airline.Airline{Name: "GarbageAir", Code: "GA"},
	)
	require.NoError(t, err)

	return registry
}

func TestFetchAndStore_OneOutcomePerAirline(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	fetcher := &fakeFetcher{
		bodies: map[string]string{
			"TA": "{\n  \"pagination\": {\"count\": 1},\n  \"data\": [{\"flight_date\": \"2024-01-01\"}]\n}",
			"GA": "<html>rate limited</html>",
		},
		errs: map[string]error{"BA": errors.New("connection reset")},
	}

	outcomes := New(fetcher, store, WithLogger(quietLogger())).FetchAndStore(ctx, testRegistry(t), runTime)

	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{"TA", "BA", "GA"}, fetcher.calls)

	assert.Equal(t, pipeline.StatusSuccess, outcomes[0].Status)
	assert.Equal(t, "TestAir (TA) saved to raw/2024/01/01/TA/flights.json", outcomes[0].String())

	assert.Equal(t, pipeline.StatusFailed, outcomes[1].Status)
	assert.Equal(t, "Failed BrokenAir (BA): connection reset", outcomes[1].String())

	assert.Equal(t, pipeline.StatusFailed, outcomes[2].Status)
	assert.Contains(t, outcomes[2].String(), "Failed GarbageAir (GA)")
	assert.Contains(t, outcomes[2].String(), ErrInvalidPayload.Error())

	assert.Equal(t, []string{"raw/2024/01/01/TA/flights.json"}, store.Keys())
}

func TestFetchAndStore_StoresCompactJSONWithChecksum(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	fetcher := &fakeFetcher{bodies: map[string]string{
		"TA": "{ \"pagination\": {\"limit\": 100}, \"data\": [ {\"b\": 1, \"a\": 2} ] }",
	}}
	registry, err := airline.NewRegistry(airline.Airline{Name: "TestAir", Code: "TA"})
	require.NoError(t, err)

	outcomes := New(fetcher, store, WithLogger(quietLogger())).FetchAndStore(ctx, registry, runTime)
	require.Len(t, outcomes, 1)

	obj, ok := store.Object("raw/2024/01/01/TA/flights.json")
	require.True(t, ok)

	// Key order survives re-serialization.
	assert.Equal(t, `{"pagination":{"limit":100},"data":[{"b":1,"a":2}]}`, string(obj.Body))
	assert.Equal(t, objectstore.ContentTypeJSON, obj.ContentType)

	sum := blake2b.Sum256(obj.Body)
	assert.Equal(t, hex.EncodeToString(sum[:]), obj.Metadata[ChecksumMetadataKey])
	assert.Equal(t, obj.Metadata[ChecksumMetadataKey], outcomes[0].Checksum)
}

func TestFetchAndStore_RerunOverwrites(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	registry, err := airline.NewRegistry(airline.Airline{Name: "TestAir", Code: "TA"})
	require.NoError(t, err)

	for i := range 2 {
		fetcher := &fakeFetcher{bodies: map[string]string{"TA": fmt.Sprintf(`{"data":[],"run":%d}`, i)}}
		New(fetcher, store, WithLogger(quietLogger())).FetchAndStore(ctx, registry, runTime.Add(time.Duration(i)*time.Hour))
	}

	assert.Equal(t, []string{"raw/2024/01/01/TA/flights.json"}, store.Keys())

	body, err := store.Get(ctx, "raw/2024/01/01/TA/flights.json")
	require.NoError(t, err)
	assert.Equal(t, `{"data":[],"run":1}`, string(body))
}

func TestFetchAndStore_StoreFailureIsPerAirline(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{"TA": `{}`, "BA": `{}`, "GA": `{}`}}

	outcomes := New(fetcher, failingStore{}, WithLogger(quietLogger())).
		FetchAndStore(context.Background(), testRegistry(t), runTime)

	require.Len(t, outcomes, 3)

	for _, o := range outcomes {
		assert.Equal(t, pipeline.StatusFailed, o.Status)
		assert.Contains(t, o.String(), "bucket unavailable")
	}
}

func TestStage_UsesRunTime(t *testing.T) {
	store := objectstore.NewMemoryStore()
	fetcher := &fakeFetcher{bodies: map[string]string{"TA": `{"data":[]}`}}
	registry, err := airline.NewRegistry(airline.Airline{Name: "TestAir", Code: "TA"})
	require.NoError(t, err)

	stage := New(fetcher, store, WithLogger(quietLogger())).Stage(registry)
	stage(context.Background(), pipeline.Run{Stage: pipeline.StageIngest, Time: time.Date(2023, 7, 9, 0, 0, 0, 0, time.UTC)})

	assert.Equal(t, []string{"raw/2023/07/09/TA/flights.json"}, store.Keys())
}

func TestReserialize(t *testing.T) {
	_, err := reserialize([]byte("   "))
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	_, err = reserialize([]byte(`{"data": [}`))
	assert.True(t, errors.Is(err, ErrInvalidPayload))

	got, err := reserialize([]byte(" [1, 2] "))
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(got))
}
