package observability

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
)

// otlpHTTPEndpointURL appends the per-signal path ("/v1/traces" or
// "/v1/metrics") to an OTLP HTTP endpoint unless it is already present.
// Query parameters and fragments survive the rewrite.
func otlpHTTPEndpointURL(endpoint, signalPath string) (string, error) {
	if strings.TrimSpace(endpoint) == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	signalPath = "/" + strings.Trim(strings.TrimSpace(signalPath), "/")

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	switch {
	case path == "":
		parsed.Path = signalPath
	case strings.HasSuffix(path, signalPath):
		parsed.Path = path
	default:
		parsed.Path = path + signalPath
	}

	return parsed.String(), nil
}

// otlpGRPCTarget resolves an OTLP gRPC endpoint into a dial target and
// whether the connection should skip TLS. A bare host:port without scheme
// is treated as insecure.
func otlpGRPCTarget(raw string) (target string, insecure bool, err error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, err
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint must include host")
	}

	switch parsed.Scheme {
	case "http", "grpc":
		return parsed.Host, true, nil
	case "https", "grpcs":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
}

// buildResource assembles the OTel resource describing this process,
// merging host and environment detectors with the configured attributes.
func buildResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String(serviceNameKey, cfg.ServiceName),
	}
	for key, value := range cfg.ResourceAttributes {
		if strings.EqualFold(key, serviceNameKey) {
			continue
		}
		attrs = append(attrs, attribute.String(key, value))
	}

	return resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithContainer(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
}
