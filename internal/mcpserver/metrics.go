package mcpserver

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var mcpTracer trace.Tracer = otel.Tracer("perplexica-mcp/mcpserver")

// toolInstruments bundles the OTel instruments shared by all tool handlers.
type toolInstruments struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	latency  metric.Float64Histogram
}

var (
	instrumentsOnce sync.Once
	instruments     toolInstruments
)

func toolMetrics() *toolInstruments {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("perplexica-mcp/mcpserver")

		var err error
		if instruments.requests, err = meter.Int64Counter(
			"perplexica.mcp.requests.total",
			metric.WithDescription("Total MCP server tool requests"),
		); err != nil {
			log.Printf("observability: failed to create MCP request counter: %v", err)
		}
		if instruments.errors, err = meter.Int64Counter(
			"perplexica.mcp.errors.total",
			metric.WithDescription("Total MCP server tool errors"),
		); err != nil {
			log.Printf("observability: failed to create MCP error counter: %v", err)
		}
		if instruments.latency, err = meter.Float64Histogram(
			"perplexica.mcp.response_time",
			metric.WithDescription("MCP server tool response time (ms)"),
			metric.WithUnit("ms"),
		); err != nil {
			log.Printf("observability: failed to create MCP latency histogram: %v", err)
		}
	})
	return &instruments
}

// recordMCPMetrics counts one tool request and its latency. A non-empty
// errType additionally counts an error carrying the type as an attribute.
func recordMCPMetrics(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration, errType string) {
	inst := toolMetrics()
	opts := metric.WithAttributes(attrs...)

	if inst.requests != nil {
		inst.requests.Add(ctx, 1, opts)
	}
	if inst.latency != nil {
		inst.latency.Record(ctx, float64(duration.Milliseconds()), opts)
	}
	if errType != "" && inst.errors != nil {
		withErr := append([]attribute.KeyValue{attribute.String("error.type", errType)}, attrs...)
		inst.errors.Add(ctx, 1, metric.WithAttributes(withErr...))
	}
}

// truncateForAttribute bounds free-form text before it lands in a span
// attribute.
func truncateForAttribute(input string) string {
	const maxAttributeLength = 120
	trimmed := strings.TrimSpace(input)
	runes := []rune(trimmed)
	if len(runes) <= maxAttributeLength {
		return trimmed
	}
	return string(runes[:maxAttributeLength]) + "..."
}
