package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestInvalidArgument(t *testing.T) {
	t.Parallel()
	err := InvalidArgument("path", "not a storage path: foo")

	if !errors.Is(err, ErrInvalidArgument) {
		t.Error("expected error to match ErrInvalidArgument")
	}
	if err.Error() != "not a storage path: foo" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "path" {
		t.Errorf("expected field 'path', got %q", appErr.Field)
	}
}

func TestStorageUnavailable(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("connection refused")
	err := StorageUnavailable("storage.put", 13, cause)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("expected error to match ErrStorageUnavailable")
	}
	if err.Error() != "storage.put failed after 13 attempts: connection refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "storage.put" {
		t.Errorf("expected op 'storage.put', got %q", appErr.Op)
	}
	if appErr.Attempts != 13 {
		t.Errorf("expected 13 attempts, got %d", appErr.Attempts)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestSubmissionFailed(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("worker binary not found")
	err := SubmissionFailed("k1-task-000000003", cause)

	if !errors.Is(err, ErrSubmissionFailed) {
		t.Error("expected error to match ErrSubmissionFailed")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestJobNotComplete(t *testing.T) {
	t.Parallel()
	err := JobNotComplete(3)

	if !errors.Is(err, ErrJobNotComplete) {
		t.Error("expected error to match ErrJobNotComplete")
	}
	if err.Error() != "3 tasks still running" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	// Ensure errors.Is works through fmt.Errorf wrapping
	original := InvalidArgument("prefix", "empty prefix")
	wrapped := fmt.Errorf("job setup: %w", original)
	doubleWrapped := fmt.Errorf("run: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrInvalidArgument) {
		t.Error("expected errors.Is to find ErrInvalidArgument through multiple wraps")
	}
}
