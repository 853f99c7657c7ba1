package agent

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	iterationsHistogram metric.Int64Histogram
	metricsOnce         sync.Once
)

func initMetrics() {
	h, err := otel.Meter("github.com/CogitoSoftwareOrg/hackseeker/internal/agent").Int64Histogram(
		"hackseeker.agent.iterations",
		metric.WithDescription("Loop iterations per run"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return
	}
	iterationsHistogram = h
}

func recordIterations(ctx context.Context, n int, mode string, failed bool) {
	metricsOnce.Do(initMetrics)
	if iterationsHistogram == nil {
		return
	}
	iterationsHistogram.Record(ctx, int64(n), metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("failed", failed),
	))
}
