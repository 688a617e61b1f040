package pipeline

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flightpipe-io/flightpipe/internal/airline"
)

var testAir = airline.Airline{Name: "TestAir", Code: "TA"}

func TestOutcomeMessages(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
		status  Status
	}{
		{
			name:    "ingest stored",
			outcome: Stored(StageIngest, testAir, "raw/2024/01/01/TA/flights.json", 0),
			want:    "TestAir (TA) saved to raw/2024/01/01/TA/flights.json",
			status:  StatusSuccess,
		},
		{
			name:    "normalize stored",
			outcome: Stored(StageNormalize, testAir, "processed/2024/01/01/TA/flights.csv", 3),
			want:    "TestAir (TA) → processed/2024/01/01/TA/flights.csv",
			status:  StatusSuccess,
		},
		{
			name:    "failure",
			outcome: Failure(StageIngest, testAir, errors.New("connection refused")),
			want:    "Failed TestAir (TA): connection refused",
			status:  StatusFailed,
		},
		{
			name:    "no raw data",
			outcome: NoRawData(testAir, "raw/2024/01/01/TA/flights.json"),
			want:    "No raw data found for TestAir (TA)",
			status:  StatusSkipped,
		},
		{
			name:    "no flights",
			outcome: NoFlights(testAir, "raw/2024/01/01/TA/flights.json"),
			want:    "No flight records for TestAir (TA)",
			status:  StatusSkipped,
		},
		{
			name:    "combined",
			outcome: CombinedStored("processed/2024/01/01/all_airlines.csv", 4),
			want:    "Combined file saved to processed/2024/01/01/all_airlines.csv",
			status:  StatusSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.String())
			assert.Equal(t, tt.status, tt.outcome.Status)
		})
	}
}

func TestCountByStatus(t *testing.T) {
	counts := CountByStatus([]Outcome{
		Stored(StageIngest, testAir, "k", 0),
		Failure(StageIngest, testAir, errors.New("x")),
		Failure(StageIngest, testAir, errors.New("y")),
	})

	assert.Equal(t, 1, counts[StatusSuccess])
	assert.Equal(t, 2, counts[StatusFailed])
	assert.Equal(t, 0, counts[StatusSkipped])
}

func TestNewResult(t *testing.T) {
	t.Run("per-airline stages answer 200 with messages even on failure", func(t *testing.T) {
		result := NewResult(StageIngest, []Outcome{
			Stored(StageIngest, testAir, "k", 0),
			Failure(StageIngest, testAir, errors.New("boom")),
		})

		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, []string{"TestAir (TA) saved to k", "Failed TestAir (TA): boom"}, result.Body)
		assert.True(t, result.OK())
	})

	t.Run("empty per-airline stage has empty body list", func(t *testing.T) {
		result := NewResult(StageNormalize, nil)

		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, []string{}, result.Body)
	})

	t.Run("load success", func(t *testing.T) {
		result := NewResult(StageLoad, []Outcome{{Stage: StageLoad, Status: StatusSuccess, Message: "loaded"}})

		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, "loaded", result.Body)
	})

	t.Run("load failure", func(t *testing.T) {
		result := NewResult(StageLoad, []Outcome{{Stage: StageLoad, Status: StatusFailed, Message: "Snowflake error: x"}})

		assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
		assert.Equal(t, "Snowflake error: x", result.Body)
		assert.False(t, result.OK())
	})
}
