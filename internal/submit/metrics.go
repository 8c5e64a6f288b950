package submit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/idcs-tools/scimctl/internal/build"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

type metrics struct {
	batches    *prometheus.CounterVec
	operations *prometheus.CounterVec
	duration   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: build.ProjectName,
			Subsystem: "bulk",
			Name:      "batches_total",
			Help:      "The total number of bulk requests by outcome.",
		}, []string{"outcome"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: build.ProjectName,
			Subsystem: "bulk",
			Name:      "operations_total",
			Help:      "The total number of bulk operations by the outcome of their request.",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:                       build.ProjectName,
			Subsystem:                       "bulk",
			Name:                            "request_duration_seconds",
			Help:                            "Time spent in a bulk request.",
			Buckets:                         []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: time.Hour,
		}),
	}
}

func (m *metrics) observe(o Outcome) {
	outcome := outcomeSucceeded
	if o.Err != nil {
		outcome = outcomeFailed
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.operations.WithLabelValues(outcome).Add(float64(o.Operations))
	if o.Duration > 0 {
		m.duration.Observe(o.Duration.Seconds())
	}
}
