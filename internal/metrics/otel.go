package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	otelOnce sync.Once
	otelErr  error
)

// InitOTelMetrics registers an observable gauge that mirrors the SQLite
// invocation totals into the OTel pipeline on every collection cycle.
// Call after observability.Init has installed the meter provider.
func InitOTelMetrics() error {
	otelOnce.Do(func() {
		meter := otel.Meter("perplexica-mcp/metrics")
		_, otelErr = meter.Int64ObservableGauge(
			"perplexica.invocations.total",
			metric.WithDescription("Cumulative total invocations by mode (search, models, health, cli)"),
			metric.WithUnit("{invocations}"),
			metric.WithInt64Callback(observeInvocations),
		)
		if otelErr != nil {
			log.Printf("metrics: failed to register invocation gauge: %v", otelErr)
		}
	})
	return otelErr
}

// observeInvocations reports one data point per mode. Without a store every
// mode reads zero, keeping the gauge's series set stable.
func observeInvocations(_ context.Context, observer metric.Int64Observer) error {
	totals := GetStats()
	for _, mode := range AllModes {
		observer.Observe(totals[mode], metric.WithAttributes(
			attribute.String("mode", string(mode)),
		))
	}
	return nil
}

// ResetOTelForTesting clears the registration state so tests can install
// fresh meter providers.
func ResetOTelForTesting() {
	otelOnce = sync.Once{}
	otelErr = nil
}
