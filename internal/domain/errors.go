package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// ConflictError indicates the operation conflicts with current state
	// (a turn already in progress, a duplicate conversation)
	ConflictError struct {
		Message      string
		ResourceType string
		ResourceID   string
	}
)

func (e *NotFoundError) Error() string   { return e.Message }
func (e *ValidationError) Error() string { return e.Message }
func (e *ConflictError) Error() string   { return e.Message }

func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }
func (e *ConflictError) StatusCode() int   { return http.StatusConflict }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")

	// Engine error taxonomy.

	// ErrProtocol: malformed or unexpected frame from the assistant backend.
	// Terminates the turn; not retryable by the engine.
	ErrProtocol = errors.New("protocol error")

	// ErrTransport: the backend stream ended mid-turn without completing.
	// Terminates the turn; retryable only by an explicit user submit/retry.
	ErrTransport = errors.New("transport error")

	// ErrDuplicateToolCall / ErrUnknownToolCall: tracker invariant violations,
	// i.e. backend-contract bugs. Surfaced, never silently swallowed.
	ErrDuplicateToolCall = errors.New("duplicate tool call id")
	ErrUnknownToolCall   = errors.New("unknown tool call")

	// ErrAlreadyInFlight / ErrTurnInProgress: caller misuse, rejected
	// synchronously with no state change.
	ErrAlreadyInFlight = errors.New("submission already in flight")
	ErrTurnInProgress  = errors.New("turn already in progress")

	// ErrCancelled: user-initiated stop, not a failure of the system.
	ErrCancelled = errors.New("cancelled")
)

func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StatusCodeFor maps an error to an HTTP status code, honoring HTTPError
// implementations and the engine sentinels.
func StatusCodeFor(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrTurnInProgress), errors.Is(err, ErrAlreadyInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
