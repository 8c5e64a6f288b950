package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushMetrics publishes everything gathered by g to a Prometheus pushgateway.
// A run is a batch job, so its metrics cannot be scraped; they are pushed once
// when the run ends, grouped by run id.
func PushMetrics(ctx context.Context, url, job, runID string, g prometheus.Gatherer) error {
	err := push.New(url, job).
		Gatherer(g).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
