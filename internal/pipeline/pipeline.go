// Package pipeline drives records from a source through batching into the
// bulk submitter and waits for every batch to finish.
package pipeline

import (
	"context"
	"fmt"
	"iter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/idcs-tools/scimctl/internal/batch"
	"github.com/idcs-tools/scimctl/internal/submit"
	"github.com/idcs-tools/scimctl/pkg/logger"
	"github.com/idcs-tools/scimctl/pkg/scim"
	"github.com/idcs-tools/scimctl/pkg/telemetry"
)

var tracer = otel.Tracer("internal/pipeline")

type Submitter interface {
	Submit(ctx context.Context, b batch.Batch) int
	Drain() []submit.Outcome
}

type Pipeline struct {
	// Name identifies the pipeline in logs and spans.
	Name        string
	Records     iter.Seq2[scim.User, error]
	Accumulator *batch.Accumulator[scim.User]
	Submitter   Submitter
	Logger      logger.Logger
}

type Summary struct {
	Discovered        int
	Batches           int
	Succeeded         int
	Failed            int
	OperationFailures int
	Outcomes          []submit.Outcome
}

// Run consumes the records on the calling goroutine, submits every full
// batch and the final partial one, and waits for all of them. When the
// record source fails no further batch is submitted, but the batches already
// submitted are awaited before the error is returned. Failed batches are
// reported in the summary, not as an error.
func Run(ctx context.Context, p Pipeline) (Summary, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("pipeline", p.Name))

	log := p.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.With(zap.String("pipeline", p.Name))

	var summary Summary
	submitBatch := func(b batch.Batch) {
		task := p.Submitter.Submit(ctx, b)
		summary.Batches++
		log.Debug("submitted batch", zap.Int("task", task), zap.Int("operations", len(b)))
	}

	var sourceErr error
	for user, err := range p.Records {
		if err != nil {
			sourceErr = err
			break
		}
		summary.Discovered++
		log.Info("processing user",
			zap.Int("count", summary.Discovered),
			zap.String("user_id", user.ID),
			zap.String("user_name", user.UserName),
		)

		if b, full := p.Accumulator.Add(user); full {
			submitBatch(b)
		}
	}

	if sourceErr == nil {
		if b, ok := p.Accumulator.Flush(); ok {
			submitBatch(b)
		}
	} else if pending := p.Accumulator.Len(); pending > 0 {
		log.Warn("discarding unsubmitted operations", zap.Int("operations", pending))
	}

	log.Info("waiting for batches", zap.Int("discovered", summary.Discovered), zap.Int("batches", summary.Batches))
	summary.Outcomes = p.Submitter.Drain()
	for _, o := range summary.Outcomes {
		if o.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.OperationFailures += o.OperationFailures
	}

	span.SetAttributes(
		attribute.Int("discovered", summary.Discovered),
		attribute.Int("batches", summary.Batches),
		attribute.Int("failed", summary.Failed),
	)
	log.Info("pipeline finished",
		zap.Int("discovered", summary.Discovered),
		zap.Int("batches", summary.Batches),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("failed_operations", summary.OperationFailures),
	)

	if sourceErr != nil {
		err := fmt.Errorf("%s: %w", p.Name, sourceErr)
		telemetry.TraceError(span, err)
		return summary, err
	}
	return summary, nil
}

// Generate returns a record source yielding n records produced by next.
func Generate(n int, next func() scim.User) iter.Seq2[scim.User, error] {
	return func(yield func(scim.User, error) bool) {
		for i := 0; i < n; i++ {
			if !yield(next(), nil) {
				return
			}
		}
	}
}
