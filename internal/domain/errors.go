package domain

import "errors"

// Microphone acquisition failures, surfaced synchronously at the point
// of acquisition. The recording attempt aborts with no side effects.
var (
	ErrMicPermissionDenied = errors.New("microphone access denied")
	ErrMicUnavailable      = errors.New("microphone device unavailable")
)

// Submission-path failure classes. BackendError carries the structured
// message of a non-success status; the sentinels classify transport
// failures and unparseable success bodies.
var (
	ErrNetwork           = errors.New("backend request failed")
	ErrMalformedResponse = errors.New("malformed backend response")
)

// BackendError is a non-success status with a structured error message.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}
