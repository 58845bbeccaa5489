package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError means the record was not in the state the operation
// requires. Callers may retry after re-reading.
type InvalidStateError struct {
	Entity   string
	ID       string
	Expected []Status
	Actual   Status
	Reason   string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s is %s, expected one of %v", e.Entity, e.ID, e.Actual, e.Expected)
}
