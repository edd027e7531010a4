package recorder

import (
	"context"
	"errors"
	"time"

	"PatternSentinel/internal/model"
)

// ErrNotRecorded is returned by history queries when no recorder keeps runs.
var ErrNotRecorded = errors.New("runs are not recorded")

// RunSummary is the per-run row kept in scan_runs.
type RunSummary struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Windows    int       `json:"windows"`
	Valid      int       `json:"valid"`
}

// Summarize builds the scan_runs row for run.
func Summarize(run *model.ScanRun) RunSummary {
	windows, valid := run.Totals()
	return RunSummary{
		ID:         run.ID,
		Source:     run.Source,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Windows:    windows,
		Valid:      valid,
	}
}

// Recorder persists scan results for later analysis.
type Recorder interface {
	RecordRun(run *model.ScanRun) error
	Close() error
}

// History is implemented by recorders that can list past runs.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// PatternQuery is implemented by recorders that can return the records of a stored run.
type PatternQuery interface {
	Patterns(ctx context.Context, runID, symbol string) ([]model.ScoredPattern, error)
}

// MultiRecorder fans every run out to several recorders.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder skips nil entries.
func NewMultiRecorder(recs ...Recorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recs {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// RecordRun writes to every recorder and joins their errors.
func (m *MultiRecorder) RecordRun(run *model.ScanRun) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.RecordRun(run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecentRuns delegates to the first recorder that keeps history, or returns
// ErrNotRecorded when none does.
func (m *MultiRecorder) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	for _, r := range m.recorders {
		if h, ok := r.(History); ok {
			return h.RecentRuns(ctx, limit)
		}
	}
	return nil, ErrNotRecorded
}

// Patterns delegates to the first recorder that can query stored records, or returns
// ErrNotRecorded when none can.
func (m *MultiRecorder) Patterns(ctx context.Context, runID, symbol string) ([]model.ScoredPattern, error) {
	for _, r := range m.recorders {
		if q, ok := r.(PatternQuery); ok {
			return q.Patterns(ctx, runID, symbol)
		}
	}
	return nil, ErrNotRecorded
}

func (m *MultiRecorder) Close() error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
