package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoBaseURL is returned when a transport has no endpoint configured.
	ErrNoBaseURL = errors.New("dispatch: base URL required")

	// ErrNilFrame is returned when Dispatch is called without a frame.
	ErrNilFrame = errors.New("dispatch: nil frame")

	// ErrNotConnected is returned when the stream connection drops while a
	// frame is awaiting its verdict.
	ErrNotConnected = errors.New("dispatch: stream not connected")

	// ErrClosed is returned after a transport has been closed.
	ErrClosed = errors.New("dispatch: transport closed")
)

// APIError represents a non-2xx response from the inference endpoint.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the (truncated) response body.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("dispatch: API error %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("dispatch: API error %d", e.StatusCode)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if a later frame is likely to succeed.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.IsServerError()
}

// RemoteError is an error reported by the backend over the stream.
type RemoteError struct {
	FrameID string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("dispatch: backend error for frame %s: %s", e.FrameID, e.Message)
}
