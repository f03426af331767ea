package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a rule or variable id does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an id or a variable name is already taken
	ErrConflict = errors.New("already exists")
)

// ValidationError reports a missing or invalid field on a rule or variable
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// DecodeError reports an evaluation payload that is not base64-encoded JSON
// object text
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode payload: %s: %v", e.Reason, e.Err)
	}
	return "decode payload: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}
