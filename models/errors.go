package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a missing file and a file owned by someone
	// else; callers must not be able to tell the two apart.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidArgument rejects a request before any state mutation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict means a conversion is already active for the file.
	ErrConflict = errors.New("conversion already in progress")
)

// ExecutionError is an executor failure (or timeout) for one target
// language mid-job.
type ExecutionError struct {
	Language string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("conversion to %q failed: %v", e.Language, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// StorageError means artifact bytes could not be durably written after a
// successful execution. Treated exactly like an execution failure for the
// affected language.
type StorageError struct {
	Language string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storing output for %q failed: %v", e.Language, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
