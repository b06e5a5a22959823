package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies a failure within the adapter's error taxonomy.
type ErrorType string

const (
	// ErrorTypeConfiguration marks a bad or missing setting. Fatal at startup.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeValidation marks bad tool input. Reported to the caller
	// before any network call is made.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTransport marks a network or timeout failure reaching the
	// upstream. Not retried.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeUpstream marks a non-2xx response from the upstream,
	// reported with status code and body.
	ErrorTypeUpstream ErrorType = "upstream"
)

// ServiceError is the error value used across the adapter. StatusCode and
// Body are populated for upstream errors only.
type ServiceError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Body       string    `json:"body,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status: %d)", e.Type, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// NewConfigurationError builds a configuration error.
func NewConfigurationError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Type:      ErrorTypeConfiguration,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// NewValidationError builds a validation error.
func NewValidationError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Type:      ErrorTypeValidation,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// NewTransportError builds a transport error.
func NewTransportError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Type:      ErrorTypeTransport,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// NewUpstreamError builds an upstream error carrying the response status and
// body.
func NewUpstreamError(statusCode int, body string) *ServiceError {
	return &ServiceError{
		Type:       ErrorTypeUpstream,
		Message:    fmt.Sprintf("upstream returned HTTP %d", statusCode),
		StatusCode: statusCode,
		Body:       body,
		Timestamp:  time.Now(),
	}
}

// WithMessage replaces the error message, keeping type, status and body.
func (e *ServiceError) WithMessage(message string) *ServiceError {
	e.Message = message
	return e
}

// ErrorTypeOf returns the taxonomy type of err, or an empty string when err
// is not a ServiceError.
func ErrorTypeOf(err error) ErrorType {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeValidation
}

// IsTransportError reports whether err is a transport error.
func IsTransportError(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeTransport
}

// IsUpstreamError reports whether err is an upstream error.
func IsUpstreamError(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeUpstream
}
