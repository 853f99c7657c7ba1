package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	costHistogram metric.Float64Histogram
	costOnce      sync.Once
)

func initCostMetrics() {
	h, err := otel.Meter("github.com/CogitoSoftwareOrg/hackseeker/internal/llm").Float64Histogram(
		"hackseeker.llm.cost",
		metric.WithDescription("Estimated cost in USD per model call"),
		metric.WithUnit("usd"),
	)
	if err != nil {
		return
	}
	costHistogram = h
}

// RecordCost records the estimated cost of one model call.
func RecordCost(ctx context.Context, cost float64, provider, model string) {
	costOnce.Do(initCostMetrics)
	if costHistogram == nil {
		return
	}
	costHistogram.Record(ctx, cost, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	))
}
