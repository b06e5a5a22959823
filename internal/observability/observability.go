// Package observability bootstraps OpenTelemetry tracing and metrics for
// the MCP server. Telemetry is off unless OTEL_ENABLED is set; when off,
// no-op providers are installed so instrumented code paths stay inert.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

const (
	defaultServiceName = "perplexica-mcp"
	protocolHTTP       = "http/protobuf"
	protocolGRPC       = "grpc"
	serviceNameKey     = "service.name"
	flushTimeout       = 5 * time.Second
)

// Config holds the telemetry settings resolved from the root configuration.
type Config struct {
	Enabled              bool
	ServiceName          string
	ExporterEndpoint     string
	ExporterProtocol     string
	ResourceAttributes   map[string]string
	TracesSampler        string
	TracesSamplerArg     float64
	MetricExportInterval time.Duration
}

// LoadConfig extracts and validates the telemetry settings from the root
// configuration. Validation of the exporter endpoint only applies when
// telemetry is enabled.
func LoadConfig(root *types.Config) (*Config, error) {
	if root == nil {
		return nil, fmt.Errorf("observability: nil root configuration provided")
	}

	attrs, err := parseResourceAttributes(root.OTelResourceAttributes)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to parse resource attributes: %w", err)
	}

	cfg := &Config{
		Enabled:            root.OTelEnabled,
		ServiceName:        strings.TrimSpace(root.OTelServiceName),
		ExporterEndpoint:   strings.TrimSpace(root.OTelExporterOTLPEndpoint),
		ExporterProtocol:   strings.ToLower(strings.TrimSpace(root.OTelExporterOTLPProtocol)),
		ResourceAttributes: attrs,
		TracesSampler:      strings.TrimSpace(root.OTelTracesSampler),
		TracesSamplerArg:   root.OTelTracesSamplerArg,
	}
	cfg.applyDefaults()

	if cfg.Enabled {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.ExporterProtocol == "" {
		c.ExporterProtocol = protocolHTTP
	}
	if c.TracesSampler == "" {
		c.TracesSampler = "always_on"
	}
	if c.MetricExportInterval <= 0 {
		c.MetricExportInterval = 60 * time.Second
	}

	if c.ResourceAttributes == nil {
		c.ResourceAttributes = make(map[string]string)
	}
	// OTel semantic conventions require service.name on every resource.
	if _, ok := c.ResourceAttributes[serviceNameKey]; !ok {
		c.ResourceAttributes[serviceNameKey] = c.ServiceName
	}
}

func (c *Config) validate() error {
	if c.ExporterEndpoint == "" {
		return fmt.Errorf("observability: OTLP exporter endpoint is required when OpenTelemetry is enabled")
	}

	switch c.ExporterProtocol {
	case protocolHTTP:
		if err := checkHTTPEndpoint(c.ExporterEndpoint); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	case protocolGRPC:
		if err := checkGRPCEndpoint(c.ExporterEndpoint); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	default:
		return fmt.Errorf("observability: unsupported OTLP exporter protocol %q", c.ExporterProtocol)
	}

	if c.TracesSamplerArg < 0 {
		return fmt.Errorf("observability: traces sampler argument must be non-negative")
	}
	if strings.EqualFold(c.TracesSampler, "traceidratio") {
		if c.TracesSamplerArg <= 0 || c.TracesSamplerArg > 1 {
			return fmt.Errorf("observability: traces sampler argument must be between 0 and 1 when sampler is traceidratio")
		}
	}

	return nil
}

func checkHTTPEndpoint(endpoint string) error {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return fmt.Errorf("OTLP exporter endpoint must include http or https scheme when using http/protobuf protocol")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid OTLP exporter endpoint: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("OTLP exporter endpoint must include a host when using http/protobuf protocol")
	}
	return nil
}

func checkGRPCEndpoint(endpoint string) error {
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("invalid OTLP exporter endpoint for grpc protocol: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("OTLP exporter endpoint must include a host when scheme is provided for grpc protocol")
		}
		return nil
	}
	if !strings.Contains(endpoint, ":") {
		return fmt.Errorf("OTLP exporter endpoint should include host:port when using grpc protocol")
	}
	return nil
}

func parseResourceAttributes(input string) (map[string]string, error) {
	attrs := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return attrs, nil
	}

	for _, pair := range strings.Split(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid resource attribute %q", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("resource attribute key cannot be empty")
		}
		attrs[key] = strings.TrimSpace(value)
	}

	return attrs, nil
}

// ShutdownFunc flushes pending telemetry and stops the providers.
type ShutdownFunc func(context.Context) error

// Init installs the global tracer and meter providers and returns the
// function that shuts them down. The returned function is always safe to
// call, including on error.
func Init(root *types.Config) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	cfg, err := LoadConfig(root)
	if err != nil {
		return noop, err
	}

	ctx := context.Background()

	tp, err := setupTracing(ctx, cfg)
	if err != nil {
		return noop, err
	}

	mp, err := setupMetering(ctx, cfg)
	if err != nil {
		_ = shutdownAll(tp)(ctx)
		return noop, err
	}

	return shutdownAll(tp, mp), nil
}

type shutdowner interface {
	Shutdown(context.Context) error
}

func shutdownAll(providers ...shutdowner) ShutdownFunc {
	return func(ctx context.Context) error {
		ctx, cancel := boundShutdownContext(ctx)
		defer cancel()

		var errs []error
		for _, provider := range providers {
			if provider == nil {
				continue
			}
			if err := provider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// boundShutdownContext caps the shutdown wait so a stalled exporter cannot
// block process exit indefinitely.
func boundShutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, flushTimeout)
}
