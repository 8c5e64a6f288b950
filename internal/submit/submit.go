//go:generate mockgen -source submit.go -destination ../mocks/mock_submit.go -package mocks BulkSubmitter

// Package submit sends batches to the bulk endpoint concurrently.
package submit

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/idcs-tools/scimctl/internal/batch"
	"github.com/idcs-tools/scimctl/pkg/logger"
	"github.com/idcs-tools/scimctl/pkg/scim"
	"github.com/idcs-tools/scimctl/pkg/telemetry"
)

var tracer = otel.Tracer("internal/submit")

// BulkSubmitter sends one bulk request and returns the raw response body.
type BulkSubmitter interface {
	Bulk(ctx context.Context, ops []scim.BulkOperation) ([]byte, error)
}

// Outcome is the terminal state of one submitted batch.
type Outcome struct {
	Task       int
	Operations int
	Err        error
	Duration   time.Duration

	// OperationFailures counts the operations the bulk response reports with
	// an error status. They do not make the task fail.
	OperationFailures int
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Submitter runs every submitted batch as its own task. At most workers bulk
// requests are in flight and tasks acquire a slot in submission order. A
// failed task is recorded and never retried; it does not affect other tasks.
type Submitter struct {
	gateway BulkSubmitter
	workers int
	sem     *semaphore.Weighted
	logger  logger.Logger
	metrics *metrics

	wg conc.WaitGroup

	mu       sync.Mutex
	next     int
	outcomes []Outcome
	// admitted is closed once the last submitted task was admitted to the
	// semaphore. The next task waits for it before queueing itself.
	admitted chan struct{}
}

type Option func(*Submitter)

func WithLogger(l logger.Logger) Option {
	return func(s *Submitter) {
		s.logger = l
	}
}

// WithRegisterer registers the submitter metrics with reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Submitter) {
		s.metrics = newMetrics(reg)
	}
}

func New(gateway BulkSubmitter, workers int, opts ...Option) *Submitter {
	if workers < 1 {
		workers = 1
	}

	admitted := make(chan struct{})
	close(admitted)

	s := &Submitter{
		gateway:  gateway,
		workers:  workers,
		sem:      semaphore.NewWeighted(int64(workers)),
		logger:   logger.NewNoopLogger(),
		admitted: admitted,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(prometheus.NewRegistry())
	}
	return s
}

// Submit schedules b and returns its task number without waiting for a worker.
// Task numbers start at 1.
func (s *Submitter) Submit(ctx context.Context, b batch.Batch) int {
	s.mu.Lock()
	s.next++
	task := s.next
	prev := s.admitted
	admitted := make(chan struct{})
	s.admitted = admitted
	s.mu.Unlock()

	s.logger.Info("batch queued", zap.Int("task", task), zap.Int("operations", len(b)))

	s.wg.Go(func() {
		outcome := s.run(ctx, task, b, prev, admitted)
		s.record(outcome)
	})
	return task
}

func (s *Submitter) run(ctx context.Context, task int, b batch.Batch, prev <-chan struct{}, admitted chan<- struct{}) Outcome {
	outcome := Outcome{Task: task, Operations: len(b)}

	<-prev
	err := s.sem.Acquire(ctx, 1)
	close(admitted)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer s.sem.Release(1)

	ctx, span := tracer.Start(ctx, "submit.task")
	defer span.End()
	span.SetAttributes(attribute.Int("task", task), attribute.Int("operations", len(b)))

	s.logger.InfoWithContext(ctx, "batch started", zap.Int("task", task))
	start := time.Now()

	var body []byte
	recovered := panics.Try(func() {
		body, err = s.gateway.Bulk(ctx, b)
	})
	if recovered != nil {
		err = recovered.AsError()
	}
	outcome.Duration = time.Since(start)
	outcome.Err = err

	if err != nil {
		telemetry.TraceError(span, err)
		return outcome
	}

	outcome.OperationFailures = operationFailures(body)
	return outcome
}

func (s *Submitter) record(o Outcome) {
	s.metrics.observe(o)

	fields := []zap.Field{
		zap.Int("task", o.Task),
		zap.Int("operations", o.Operations),
		zap.Duration("duration", o.Duration),
	}
	switch {
	case o.Err != nil:
		s.logger.Error("batch failed", append(fields, zap.Error(o.Err))...)
	case o.OperationFailures > 0:
		s.logger.Warn("batch completed with failed operations", append(fields, zap.Int("failed_operations", o.OperationFailures))...)
	default:
		s.logger.Info("batch completed", fields...)
	}

	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	s.mu.Unlock()
}

// Drain waits until every submitted task finished and returns their outcomes
// ordered by task number.
func (s *Submitter) Drain() []Outcome {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.outcomes)
	slices.SortFunc(out, func(a, b Outcome) int {
		return a.Task - b.Task
	})
	return out
}

// operationFailures counts the operations of a bulk response whose status is
// an HTTP error. The status is either a string or an object with a code.
func operationFailures(body []byte) int {
	if !gjson.ValidBytes(body) {
		return 0
	}

	failures := 0
	gjson.GetBytes(body, "Operations").ForEach(func(_, op gjson.Result) bool {
		status := op.Get("status")
		if status.IsObject() {
			status = status.Get("code")
		}
		if status.Int() >= 400 {
			failures++
		}
		return true
	})
	return failures
}
