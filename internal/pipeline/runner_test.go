package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	reports []*Report
	err     error
}

func (f *fakeRecorder) RecordRun(_ context.Context, report *Report) error {
	f.reports = append(f.reports, report)

	return f.err
}

type fakePublisher struct {
	reports []*Report
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, report *Report) error {
	f.reports = append(f.reports, report)

	return f.err
}

type fakeObserver struct {
	reports []*Report
}

func (f *fakeObserver) Observe(_ context.Context, report *Report) {
	f.reports = append(f.reports, report)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_ExecuteReportsToAllSinks(t *testing.T) {
	fixed := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{}
	observer := &fakeObserver{}

	runner := NewRunner(
		WithLogger(discardLogger()),
		WithClock(func() time.Time { return fixed }),
		WithRecorder(recorder),
		WithPublisher(publisher),
		WithObserver(observer),
	)

	var seen Run

	result, report := runner.Execute(context.Background(), StageIngest, func(_ context.Context, run Run) []Outcome {
		seen = run

		return []Outcome{Stored(StageIngest, testAir, "raw/2024/01/01/TA/flights.json", 0)}
	}, nil)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, fixed, seen.Time)
	assert.Equal(t, StageIngest, seen.Stage)
	assert.Equal(t, seen.ID, report.RunID)
	assert.Equal(t, "2024-01-01", report.RunDate)
	assert.Len(t, report.Outcomes, 1)

	require.Len(t, recorder.reports, 1)
	require.Len(t, publisher.reports, 1)
	require.Len(t, observer.reports, 1)
	assert.Same(t, report, recorder.reports[0])
}

func TestRunner_SinkFailuresDoNotChangeResult(t *testing.T) {
	runner := NewRunner(
		WithLogger(discardLogger()),
		WithRecorder(&fakeRecorder{err: errors.New("ledger down")}),
		WithPublisher(&fakePublisher{err: errors.New("broker down")}),
	)

	handler := runner.Handler(StageLoad, func(context.Context, Run) []Outcome {
		return []Outcome{{Stage: StageLoad, Status: StatusSuccess, Message: "ok"}}
	})

	result := handler(context.Background(), []byte(`{"source":"aws.events"}`))

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "ok", result.Body)
}

func TestRunner_AppliesStageDeadline(t *testing.T) {
	runner := NewRunner(WithLogger(discardLogger()), WithTimeout(time.Minute))

	var (
		deadline time.Time
		ok       bool
	)

	runner.Execute(context.Background(), StageNormalize, func(ctx context.Context, _ Run) []Outcome {
		deadline, ok = ctx.Deadline()

		return nil
	}, nil)

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestRunner_NoDeadlineWhenDisabled(t *testing.T) {
	runner := NewRunner(WithLogger(discardLogger()), WithTimeout(0))

	var ok bool

	runner.Execute(context.Background(), StageNormalize, func(ctx context.Context, _ Run) []Outcome {
		_, ok = ctx.Deadline()

		return nil
	}, nil)

	assert.False(t, ok)
}

func TestRunner_RunTimePinnedAcrossMidnight(t *testing.T) {
	pinned := time.Date(2024, time.January, 1, 23, 59, 59, 0, time.UTC)
	clock := pinned

	runner := NewRunner(
		WithLogger(discardLogger()),
		WithClock(func() time.Time { return clock }),
		WithRunTime(pinned),
	)

	var dates []string

	record := func(_ context.Context, run Run) []Outcome {
		dates = append(dates, run.Time.Format(time.DateOnly))

		return nil
	}

	_, first := runner.Execute(context.Background(), StageIngest, record, nil)

	clock = pinned.Add(2 * time.Second)
	_, second := runner.Execute(context.Background(), StageNormalize, record, nil)

	assert.Equal(t, []string{"2024-01-01", "2024-01-01"}, dates)
	assert.Equal(t, "2024-01-01", first.RunDate)
	assert.Equal(t, "2024-01-01", second.RunDate)
	assert.Equal(t, clock, second.StartedAt)
}
