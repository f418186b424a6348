// Package apperrors provides structured application errors for the job
// orchestrator and its storage layer.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	// ErrInvalidArgument marks malformed input (bad storage path, bad
	// naming input). Fails fast, never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageUnavailable marks a store call that failed after the
	// retry budget was exhausted. Fatal to the calling operation.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSubmissionFailed marks a backend that could not start a task.
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrJobNotComplete marks result retrieval attempted while tasks are
	// still running. Caller error.
	ErrJobNotComplete = errors.New("job not complete")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For invalid-argument errors (e.g., "path", "prefix")
	Op       string // Operation that failed (e.g., "storage.put", "backend.submit")
	Attempts int    // For storage errors, attempts made before giving up
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// InvalidArgument creates an invalid-argument error for a specific field.
func InvalidArgument(field, message string) error {
	return &Error{
		Sentinel: ErrInvalidArgument,
		Message:  message,
		Field:    field,
	}
}

// StorageUnavailable creates a storage error after retry exhaustion,
// wrapping the last underlying cause.
func StorageUnavailable(op string, attempts int, cause error) error {
	return &Error{
		Sentinel: ErrStorageUnavailable,
		Message:  fmt.Sprintf("%s failed after %d attempts: %v", op, attempts, cause),
		Op:       op,
		Attempts: attempts,
		Cause:    cause,
	}
}

// SubmissionFailed creates a backend submission error for a task.
func SubmissionFailed(taskName string, cause error) error {
	return &Error{
		Sentinel: ErrSubmissionFailed,
		Message:  fmt.Sprintf("backend could not start task %s: %v", taskName, cause),
		Op:       "backend.submit",
		Cause:    cause,
	}
}

// JobNotComplete creates an error for premature result retrieval.
func JobNotComplete(running int) error {
	return &Error{
		Sentinel: ErrJobNotComplete,
		Message:  fmt.Sprintf("%d tasks still running", running),
	}
}
