// Package journal keeps an audit trail of the runs that modified the tenant
// and of every bulk request they sent.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/idcs-tools/scimctl/internal/submit"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrCollision = errors.New("item already exists")
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

type Run struct {
	ID        string
	Command   string
	ClientID  string
	StartedAt time.Time
}

// Result is the final tally of a run.
type Result struct {
	Discovered        int
	Batches           int
	Succeeded         int
	Failed            int
	OperationFailures int
	Err               error
}

// RunRecord is a stored run.
type RunRecord struct {
	Run
	FinishedAt *time.Time
	Result
	Error string
}

// BatchRecord is a stored bulk request.
type BatchRecord struct {
	RunID             string
	Task              int
	Operations        int
	Outcome           string
	Error             string
	OperationFailures int
	Duration          time.Duration
}

type Journal interface {
	StartRun(ctx context.Context, run Run) error
	RecordBatch(ctx context.Context, runID string, outcome submit.Outcome) error
	FinishRun(ctx context.Context, runID string, result Result) error
	Runs(ctx context.Context, limit uint64) ([]RunRecord, error)
	Batches(ctx context.Context, runID string) ([]BatchRecord, error)
	Close() error
}

func batchRecord(runID string, o submit.Outcome) BatchRecord {
	rec := BatchRecord{
		RunID:             runID,
		Task:              o.Task,
		Operations:        o.Operations,
		Outcome:           OutcomeSucceeded,
		OperationFailures: o.OperationFailures,
		Duration:          o.Duration,
	}
	if o.Err != nil {
		rec.Outcome = OutcomeFailed
		rec.Error = o.Err.Error()
	}
	return rec
}

// Noop discards everything. It is used when no journal path is configured.
type Noop struct{}

var _ Journal = Noop{}

func (Noop) StartRun(context.Context, Run) error                       { return nil }
func (Noop) RecordBatch(context.Context, string, submit.Outcome) error { return nil }
func (Noop) FinishRun(context.Context, string, Result) error           { return nil }
func (Noop) Runs(context.Context, uint64) ([]RunRecord, error)         { return nil, nil }
func (Noop) Batches(context.Context, string) ([]BatchRecord, error)    { return nil, nil }
func (Noop) Close() error                                              { return nil }
