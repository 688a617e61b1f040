// Package pipeline defines the per-item outcomes every stage reports and the
// runner that turns a stage into an invocable handler.
package pipeline

import (
	"fmt"

	"github.com/flightpipe-io/flightpipe/internal/airline"
)

// Stage names a pipeline stage.
type Stage string

// Pipeline stages, in data-flow order.
const (
	StageIngest    Stage = "ingest"
	StageNormalize Stage = "normalize"
	StageLoad      Stage = "load"
)

// Status is the disposition of one outcome.
type Status string

const (
	// StatusSuccess means the item produced its artifact.
	StatusSuccess Status = "success"
	// StatusSkipped means there was nothing to do for the item. Not an error.
	StatusSkipped Status = "skipped"
	// StatusFailed means the item failed; other items were still processed.
	StatusFailed Status = "failed"
)

// Outcome records what happened to one airline, one artifact, or one load.
type Outcome struct {
	Stage    Stage  `json:"stage"`
	Airline  string `json:"airline,omitempty"`
	Code     string `json:"code,omitempty"`
	Status   Status `json:"status"`
	Key      string `json:"key,omitempty"`
	Rows     int    `json:"rows,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Message  string `json:"message"`
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// String returns the operational message for logs and stage results.
func (o Outcome) String() string {
	return o.Message
}

// Stored records an airline artifact written under key.
func Stored(stage Stage, a airline.Airline, key string, rows int) Outcome {
	msg := fmt.Sprintf("%s → %s", a, key)
	if stage == StageIngest {
		msg = fmt.Sprintf("%s saved to %s", a, key)
	}

	return Outcome{
		Stage:   stage,
		Airline: a.Name,
		Code:    a.Code,
		Status:  StatusSuccess,
		Key:     key,
		Rows:    rows,
		Message: msg,
	}
}

// Failure records an airline that failed with err.
func Failure(stage Stage, a airline.Airline, err error) Outcome {
	return Outcome{
		Stage:   stage,
		Airline: a.Name,
		Code:    a.Code,
		Status:  StatusFailed,
		Message: fmt.Sprintf("Failed %s: %v", a, err),
	}
}

// NoRawData records an airline whose raw payload was not found.
func NoRawData(a airline.Airline, key string) Outcome {
	return Outcome{
		Stage:   StageNormalize,
		Airline: a.Name,
		Code:    a.Code,
		Status:  StatusSkipped,
		Key:     key,
		Message: fmt.Sprintf("No raw data found for %s", a),
	}
}

// NoFlights records an airline whose payload held zero flight records.
func NoFlights(a airline.Airline, key string) Outcome {
	return Outcome{
		Stage:   StageNormalize,
		Airline: a.Name,
		Code:    a.Code,
		Status:  StatusSkipped,
		Key:     key,
		Message: fmt.Sprintf("No flight records for %s", a),
	}
}

// CombinedStored records the all-airlines artifact.
func CombinedStored(key string, rows int) Outcome {
	return Outcome{
		Stage:   StageNormalize,
		Status:  StatusSuccess,
		Key:     key,
		Rows:    rows,
		Message: "Combined file saved to " + key,
	}
}

// CombinedFailure records a failed write of the all-airlines artifact.
func CombinedFailure(key string, err error) Outcome {
	return Outcome{
		Stage:   StageNormalize,
		Status:  StatusFailed,
		Key:     key,
		Message: fmt.Sprintf("Failed to save combined file %s: %v", key, err),
	}
}

// Messages renders outcomes as the list of strings a stage result carries.
func Messages(outcomes []Outcome) []string {
	msgs := make([]string, len(outcomes))
	for i, o := range outcomes {
		msgs[i] = o.String()
	}

	return msgs
}

// CountByStatus tallies outcomes per status.
func CountByStatus(outcomes []Outcome) map[Status]int {
	counts := make(map[Status]int, 3)
	for _, o := range outcomes {
		counts[o.Status]++
	}

	return counts
}
