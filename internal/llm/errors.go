package llm

import (
	"errors"
	"fmt"
)

// Common errors returned by backends. Callers classify failures with
// errors.Is against these sentinels; BackendError carries the detail.
var (
	// ErrMissingCredential indicates a hosted backend was selected without
	// an API key. Detected before any network call is made.
	ErrMissingCredential = errors.New("missing credential")
	// ErrBackendUnavailable indicates the backend is not reachable
	// (connection refused, DNS failure, timeout).
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAuthentication indicates the provider rejected the credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRateLimited indicates the provider signalled quota or rate exhaustion.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedResponse indicates the response body could not be parsed
	// into the provider's expected envelope.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrProvider indicates the provider returned a well-formed error payload
	// for any other reason; the provider's message is passed through.
	ErrProvider = errors.New("provider error")
	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")
	// ErrContextCanceled indicates the operation was canceled via context.
	ErrContextCanceled = errors.New("context canceled")
)

// BackendError wraps errors from backend operations with additional context.
type BackendError struct {
	// Backend is the type of backend that produced the error.
	Backend BackendType
	// Op is the operation that failed (e.g. "Chat", "ListModels").
	Op string
	// Err is the underlying error.
	Err error
	// HTTPCode is the HTTP status code, if applicable.
	HTTPCode int
}

// Error returns the error message.
func (e *BackendError) Error() string {
	base := fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
	if e.HTTPCode != 0 {
		base = fmt.Sprintf("%s (HTTP %d)", base, e.HTTPCode)
	}
	return base
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError creates a new BackendError.
func NewBackendError(backend BackendType, op string, err error) *BackendError {
	return &BackendError{
		Backend: backend,
		Op:      op,
		Err:     err,
	}
}

// NewBackendErrorWithCode creates a new BackendError with an HTTP status code.
func NewBackendErrorWithCode(backend BackendType, op string, err error, httpCode int) *BackendError {
	return &BackendError{
		Backend:  backend,
		Op:       op,
		Err:      err,
		HTTPCode: httpCode,
	}
}

// IsMissingCredential checks if the error indicates an absent API key.
func IsMissingCredential(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}

// IsBackendUnavailable checks if the error indicates a connectivity issue.
func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// IsAuthentication checks if the error indicates a rejected credential.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsMalformedResponse checks if the error indicates an unparseable envelope.
func IsMalformedResponse(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsModelNotFound checks if the error indicates a missing model.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}
