package normalize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpipe-io/flightpipe/internal/airline"
	"github.com/flightpipe-io/flightpipe/internal/objectstore"
	"github.com/flightpipe-io/flightpipe/internal/partition"
	"github.com/flightpipe-io/flightpipe/internal/pipeline"
)

var runTime = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T, airlines ...airline.Airline) *airline.Registry {
	t.Helper()

	registry, err := airline.NewRegistry(airlines...)
	require.NoError(t, err)

	return registry
}

func putRaw(t *testing.T, store objectstore.Store, code, payload string) {
	t.Helper()

	err := store.Put(context.Background(), partition.RawKey(runTime, code), []byte(payload), objectstore.ContentTypeJSON)
	require.NoError(t, err)
}

func object(t *testing.T, store *objectstore.MemoryStore, key string) string {
	t.Helper()

	obj, ok := store.Object(key)
	require.True(t, ok, "missing object %s", key)

	return string(obj.Body)
}

// writeFailingStore fails writes to keys with the given suffix.
type writeFailingStore struct {
	*objectstore.MemoryStore
	suffix string
}

func (s writeFailingStore) Put(ctx context.Context, key string, body []byte, contentType string, opts ...objectstore.PutOption) error {
	if strings.HasSuffix(key, s.suffix) {
		return errors.New("access denied")
	}

	return s.MemoryStore.Put(ctx, key, body, contentType, opts...)
}

func TestNormalizeAll_SingleAirlineEndToEnd(t *testing.T) {
	store := objectstore.NewMemoryStore()
	putRaw(t, store, "TA", `{"data":[{"flight_date":"2024-01-01","departure":{"scheduled":"2024-01-01T10:00:00"}}]}`)

	n := New(store, WithLogger(quietLogger()))
	outcomes := n.NormalizeAll(context.Background(), newRegistry(t, airline.Airline{Name: "TestAir", Code: "TA"}), runTime)

	assert.Equal(t, []string{
		"TestAir (TA) → processed/2024/01/01/TA/flights.csv",
		"Combined file saved to processed/2024/01/01/all_airlines.csv",
	}, pipeline.Messages(outcomes))

	expected := "flight_date,departure_scheduled,airline_name,airline_iata\n" +
		"2024-01-01,2024-01-01 10:00:00,TestAir,TA\n"

	assert.Equal(t, expected, object(t, store, "processed/2024/01/01/TA/flights.csv"))
	assert.Equal(t, expected, object(t, store, "processed/2024/01/01/all_airlines.csv"))

	obj, _ := store.Object("processed/2024/01/01/all_airlines.csv")
	assert.Equal(t, objectstore.ContentTypeCSV, obj.ContentType)
	assert.Equal(t, 1, outcomes[1].Rows)
}

func TestNormalizeAll_MixedAirlines(t *testing.T) {
	store := objectstore.NewMemoryStore()
	registry := newRegistry(t,
		airline.Airline{Name: "Airsial", Code: "PF"},
		airline.Airline{Name: "PIA", Code: "PK"},
		airline.Airline{Name: "SereneAir", Code: "ER"},
		airline.Airline{Name: "Airblue", Code: "PA"},
	)

	putRaw(t, store, "PF", `{"data":[
		{"flight_date":"2024-01-01","flight_status":"active","live":null,"aircraft":null,
		 "departure":{"iata":"KHI","scheduled":"2024-01-01T10:00:00+00:00","estimated_runway":null,"actual_runway":null},
		 "airline":{"name":"AirSial","iata":"PF"}},
		{"flight_date":"garbage","flight_status":"landed","departure":{"iata":"LHE"}}
	]}`)
	putRaw(t, store, "PK", `{"pagination":{"total":0},"data":[]}`)
	// ER has no raw object.
	putRaw(t, store, "PA", `{"data":[{"flight_status":"scheduled","arrival":{"iata":"ISB"}}]}`)

	outcomes := New(store, WithLogger(quietLogger())).NormalizeAll(context.Background(), registry, runTime)

	assert.Equal(t, []string{
		"Airsial (PF) → processed/2024/01/01/PF/flights.csv",
		"No flight records for PIA (PK)",
		"No raw data found for SereneAir (ER)",
		"Airblue (PA) → processed/2024/01/01/PA/flights.csv",
		"Combined file saved to processed/2024/01/01/all_airlines.csv",
	}, pipeline.Messages(outcomes))

	assert.Equal(t, map[pipeline.Status]int{pipeline.StatusSuccess: 3, pipeline.StatusSkipped: 2}, pipeline.CountByStatus(outcomes))

	pf := object(t, store, "processed/2024/01/01/PF/flights.csv")
	assert.Equal(t,
		"flight_date,flight_status,departure_iata,departure_scheduled,airline_name,airline_iata\n"+
			"2024-01-01,active,KHI,2024-01-01 10:00:00+00:00,Airsial,PF\n"+
			",landed,LHE,,Airsial,PF\n",
		pf)

	combined := object(t, store, "processed/2024/01/01/all_airlines.csv")
	assert.Equal(t,
		"flight_date,flight_status,departure_iata,departure_scheduled,airline_name,airline_iata,arrival_iata\n"+
			"2024-01-01,active,KHI,2024-01-01 10:00:00+00:00,Airsial,PF,\n"+
			",landed,LHE,,Airsial,PF,\n"+
			",scheduled,,,Airblue,PA,ISB\n",
		combined)

	assert.NotContains(t, store.Keys(), "processed/2024/01/01/PK/flights.csv")
	assert.NotContains(t, store.Keys(), "processed/2024/01/01/ER/flights.csv")
}

func TestNormalizeAll_NoRowsWritesNoCombinedFile(t *testing.T) {
	store := objectstore.NewMemoryStore()
	putRaw(t, store, "TA", `{"data":[]}`)

	outcomes := New(store, WithLogger(quietLogger())).
		NormalizeAll(context.Background(), newRegistry(t, airline.Airline{Name: "TestAir", Code: "TA"}), runTime)

	assert.Equal(t, []string{"No flight records for TestAir (TA)"}, pipeline.Messages(outcomes))
	assert.Equal(t, []string{partition.RawKey(runTime, "TA")}, store.Keys())
}

func TestNormalizeAll_MalformedPayloadContinues(t *testing.T) {
	store := objectstore.NewMemoryStore()
	putRaw(t, store, "BA", `{"data":[`)
	putRaw(t, store, "TA", `{"data":[{"flight_status":"active"}]}`)

	registry := newRegistry(t,
		airline.Airline{Name: "BrokenAir", Code: "BA"},
		airline.Airline{Name: "TestAir", Code: "TA"},
	)

	outcomes := New(store, WithLogger(quietLogger())).NormalizeAll(context.Background(), registry, runTime)

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Failed())
	assert.True(t, strings.HasPrefix(outcomes[0].Message, "Failed BrokenAir (BA): "))
	assert.Equal(t, "TestAir (TA) → processed/2024/01/01/TA/flights.csv", outcomes[1].Message)
	assert.Equal(t, "Combined file saved to processed/2024/01/01/all_airlines.csv", outcomes[2].Message)
}

func TestNormalizeAll_CombinedWriteFailure(t *testing.T) {
	mem := objectstore.NewMemoryStore()
	putRaw(t, mem, "TA", `{"data":[{"flight_status":"active"}]}`)

	store := writeFailingStore{MemoryStore: mem, suffix: "all_airlines.csv"}
	outcomes := New(store, WithLogger(quietLogger())).
		NormalizeAll(context.Background(), newRegistry(t, airline.Airline{Name: "TestAir", Code: "TA"}), runTime)

	require.Len(t, outcomes, 2)
	assert.Equal(t, pipeline.StatusSuccess, outcomes[0].Status)
	assert.True(t, outcomes[1].Failed())
	assert.Contains(t, outcomes[1].Message, "access denied")
}

func TestNormalizeAll_PerAirlineWriteFailure(t *testing.T) {
	mem := objectstore.NewMemoryStore()
	putRaw(t, mem, "TA", `{"data":[{"flight_status":"active"}]}`)

	store := writeFailingStore{MemoryStore: mem, suffix: "TA/flights.csv"}
	outcomes := New(store, WithLogger(quietLogger())).
		NormalizeAll(context.Background(), newRegistry(t, airline.Airline{Name: "TestAir", Code: "TA"}), runTime)

	assert.Equal(t, []string{"Failed TestAir (TA): access denied"}, pipeline.Messages(outcomes))
	_, ok := mem.Object(partition.CombinedKey(runTime))
	assert.False(t, ok)
}

func TestNormalizeAll_ParquetExport(t *testing.T) {
	store := objectstore.NewMemoryStore()
	putRaw(t, store, "TA", `{"data":[{"flight_status":"active"}]}`)

	outcomes := New(store, WithLogger(quietLogger()), WithParquetExport(true)).
		NormalizeAll(context.Background(), newRegistry(t, airline.Airline{Name: "TestAir", Code: "TA"}), runTime)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "Combined file saved to processed/2024/01/01/all_airlines.parquet", outcomes[2].Message)

	obj, ok := store.Object(partition.CombinedParquetKey(runTime))
	require.True(t, ok)
	assert.Equal(t, objectstore.ContentTypeParquet, obj.ContentType)
}

func TestNormalize_DropsAndTags(t *testing.T) {
	payload := `{"data":[{"live":{"updated":"x"},"aircraft":null,"arrival":{"actual_runway":"2024-01-01T10:00:00","actual":"2024-01-01T10:05:00"}}]}`

	table, err := Normalize([]byte(payload), airline.Airline{Name: "TestAir", Code: "TA"})
	require.NoError(t, err)

	// "live" is an object here, so its flattened column survives.
	assert.Equal(t, []string{"live_updated", "arrival_actual", "airline_name", "airline_iata"}, table.Columns())
	assert.Equal(t, "2024-01-01 10:05:00", formatValue(table.Value(0, "arrival_actual")))
}

func TestStage(t *testing.T) {
	store := objectstore.NewMemoryStore()
	putRaw(t, store, "TA", `{"data":[{"flight_status":"active"}]}`)

	stage := New(store, WithLogger(quietLogger())).Stage(newRegistry(t, airline.Airline{Name: "TestAir", Code: "TA"}))
	outcomes := stage(context.Background(), pipeline.Run{Stage: pipeline.StageNormalize, Time: runTime})

	assert.Len(t, outcomes, 2)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PARQUET_EXPORT", "true")
	assert.True(t, LoadConfig().ParquetExport)

	t.Setenv("PARQUET_EXPORT", "")
	assert.False(t, LoadConfig().ParquetExport)
}
