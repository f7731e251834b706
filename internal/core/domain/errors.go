package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects a file before any task is created.
	ErrValidation = errors.New("validation failed")
	// ErrTransfer marks a byte-transfer failure; the task is retry-eligible.
	ErrTransfer = errors.New("transfer failed")
	// ErrProcessing marks a backend-reported processing failure.
	ErrProcessing = errors.New("processing failed")
	// ErrQuery is a transient poll-request failure; it never fails the task.
	ErrQuery = errors.New("status query failed")

	// ErrStatusPurged signals a 404 from the progress endpoint: the backend
	// purged the transient status record after processing finished.
	ErrStatusPurged = errors.New("status record purged")

	ErrTaskNotFound = errors.New("task not found")
	ErrTooManyFiles = errors.New("too many files")
	ErrInvalidState = errors.New("invalid task state")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
