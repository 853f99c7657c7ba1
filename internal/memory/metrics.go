package memory

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/CogitoSoftwareOrg/hackseeker/internal/memory")

var (
	writesTotal metric.Int64Counter
	readsTotal  metric.Int64Counter
)

func init() {
	var err error
	writesTotal, err = meter.Int64Counter("memory.writes.total",
		metric.WithDescription("Memory items written"))
	if err != nil {
		writesTotal, _ = meter.Int64Counter("memory.writes.total.fallback")
	}
	readsTotal, err = meter.Int64Counter("memory.reads.total",
		metric.WithDescription("Budget-bounded memory searches"))
	if err != nil {
		readsTotal, _ = meter.Int64Counter("memory.reads.total.fallback")
	}
}
