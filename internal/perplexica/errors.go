package perplexica

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tianmu/perplexica-mcp-server/internal/types"
)

// ClassifyHTTPError maps a non-2xx upstream response to an upstream error.
// The message names the failure class so callers can act on it without
// parsing the body; the status code and body travel alongside.
func ClassifyHTTPError(statusCode int, body string) *types.ServiceError {
	serviceErr := types.NewUpstreamError(statusCode, body)

	switch {
	case statusCode == http.StatusNotFound:
		serviceErr.Message = fmt.Sprintf(
			"upstream endpoint not found (HTTP %d); check that PERPLEXICA_BASE_URL points at a Perplexica instance", statusCode)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		serviceErr.Message = fmt.Sprintf("upstream rejected the request (HTTP %d)", statusCode)
	case statusCode == http.StatusTooManyRequests:
		serviceErr.Message = fmt.Sprintf("upstream rate limit exceeded (HTTP %d)", statusCode)
	case statusCode >= 500:
		serviceErr.Message = fmt.Sprintf("upstream server error (HTTP %d)", statusCode)
	}

	return serviceErr
}

// ClassifyConnectionError maps a failed HTTP round-trip to a transport error.
func ClassifyConnectionError(err error) *types.ServiceError {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewTransportError("request to Perplexica timed out: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewTransportError("request to Perplexica canceled: %v", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewTransportError("request to Perplexica timed out: %v", err)
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "connection refused") {
		return types.NewTransportError(
			"connection to Perplexica refused; check that the service is running at the configured base URL")
	}

	if strings.Contains(errMsg, "no such host") {
		return types.NewTransportError(
			"Perplexica host not found; check the host name in PERPLEXICA_BASE_URL")
	}

	return types.NewTransportError("network error connecting to Perplexica: %v", err)
}
