package pipeline

import "net/http"

// Result is what a stage invocation returns to its caller.
//
// Body is a []string of outcome messages for the per-airline stages and a
// single message string for the load stage.
type Result struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

// OK reports whether the status code is 2xx.
func (r Result) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// NewResult builds the result for a stage from its outcomes.
//
// Per-airline stages always answer 200: their failures are itemised in the body.
// The load stage is a single batch operation and answers 500 when it failed.
func NewResult(stage Stage, outcomes []Outcome) Result {
	if stage != StageLoad {
		return Result{StatusCode: http.StatusOK, Body: Messages(outcomes)}
	}

	if len(outcomes) == 0 {
		return Result{StatusCode: http.StatusInternalServerError, Body: "Unexpected error: load produced no outcome"}
	}

	o := outcomes[0]
	if o.Failed() {
		return Result{StatusCode: http.StatusInternalServerError, Body: o.String()}
	}

	return Result{StatusCode: http.StatusOK, Body: o.String()}
}
