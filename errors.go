package notes

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("notes: transport failure")

	// ErrStreamUnavailable indicates the streaming endpoint answered but no
	// readable event stream could be opened. PredictStream falls back to
	// Predict on this error unless fallback is disabled.
	ErrStreamUnavailable = errors.New("notes: stream unavailable")

	// ErrMalformedFrame indicates a single SSE frame could not be interpreted.
	// The frame is dropped and the stream continues.
	ErrMalformedFrame = errors.New("notes: malformed frame")

	// ErrUnknownEventType indicates a frame with an unrecognized "type".
	// Treated as forward-compatible noise.
	ErrUnknownEventType = errors.New("notes: unknown event type")

	// ErrInvalidRequest indicates the request or client configuration is invalid.
	ErrInvalidRequest = errors.New("notes: invalid request")

	// ErrUnauthorized indicates the backend rejected the bearer credential.
	ErrUnauthorized = errors.New("notes: unauthorized")

	// ErrInvalidModel indicates a generator does not support the requested model.
	ErrInvalidModel = errors.New("notes: invalid or unsupported model")

	// ErrInvalidAPIKey indicates a generator API key is missing.
	ErrInvalidAPIKey = errors.New("notes: invalid API key")
)

// TransportError is a network-level failure issuing a request.
// Fatal to the current call.
type TransportError struct {
	Op  string // "predict", "predict/stream", "health", or "read"
	URL string // Request URL
	Err error  // Underlying net/http error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransport so callers can match without errors.As.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// HTTPError is a non-success status from the backend.
type HTTPError struct {
	StatusCode int    // HTTP status code
	Message    string // Error detail from the backend, or the raw body
	Retryable  bool   // Whether this error is potentially retryable
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

// Is maps 401/403 to ErrUnauthorized.
func (e *HTTPError) Is(target error) bool {
	if target == ErrUnauthorized {
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// FrameError describes why a single stream frame was dropped.
type FrameError struct {
	Payload string // Raw data payload of the frame
	Reason  string // Human-readable explanation
	Err     error  // ErrMalformedFrame or ErrUnknownEventType
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// ModelError represents an error related to model validation or availability.
type ModelError struct {
	Model    string // The model that was requested
	Provider string // The provider name
	Reason   string // Human-readable explanation
	Err      error  // Wrapped error (usually ErrInvalidModel)
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model '%s' for provider '%s': %s (%v)", e.Model, e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("model '%s' for provider '%s': %s", e.Model, e.Provider, e.Reason)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// streamUnavailable wraps the cause of a failed stream open.
type streamUnavailable struct {
	cause error
}

// NewStreamUnavailable wraps cause so that errors.Is(err, ErrStreamUnavailable)
// holds while the cause stays reachable with errors.As.
func NewStreamUnavailable(cause error) error {
	return &streamUnavailable{cause: cause}
}

func (e *streamUnavailable) Error() string {
	if e.cause == nil {
		return ErrStreamUnavailable.Error()
	}
	return fmt.Sprintf("%v: %v", ErrStreamUnavailable, e.cause)
}

func (e *streamUnavailable) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrStreamUnavailable}
	}
	return []error{ErrStreamUnavailable, e.cause}
}

// IsRetryable checks if an error is potentially retryable.
// Returns true for transport failures and 5xx/429 responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable
	}

	return errors.Is(err, ErrTransport)
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidAPIKey)
}

// IsStreamUnavailable reports whether err should trigger the non-streaming fallback.
func IsStreamUnavailable(err error) bool {
	return errors.Is(err, ErrStreamUnavailable)
}
