// Package errors provides the error taxonomy shared by the sync engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout           = errors.New("operation timed out")
	ErrRateLimit         = errors.New("rate limit exceeded")
	ErrNotFound          = errors.New("resource not found")
	ErrUnavailable       = errors.New("remote service unavailable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMissingCredential = errors.New("api credential is not configured")
	ErrMissingKit        = errors.New("no kit is selected")
	ErrNotResolved       = errors.New("synced configuration is not resolved")
	ErrOutOfRange        = errors.New("presentation position out of range")
)

// APIError represents an error from the remote board API, either an HTTP
// failure or an error payload inside a 200 response.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit)
}

// IsConfiguration reports whether err stems from missing local configuration
// rather than from the network.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrMissingKit)
}
