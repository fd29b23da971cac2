package pricing

import (
	"errors"
	"fmt"
)

// ErrAreaNotFound is returned by area fee lookups for slugs that are not in the schedule.
var ErrAreaNotFound = errors.New("delivery area not found")

// ValidationError reports malformed calculation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "pricing: " + e.Reason
	}
	return fmt.Sprintf("pricing: %s %s", e.Field, e.Reason)
}

// UnknownAreaError reports a delivery area missing from the fee schedule.
type UnknownAreaError struct {
	Area string
}

func (e *UnknownAreaError) Error() string {
	return fmt.Sprintf("pricing: unknown delivery area %q", e.Area)
}

// LookupFailedError reports a collaborator that could not be consulted. It is
// transient: the whole calculation may be retried.
type LookupFailedError struct {
	Collaborator string
	Key          string
	Err          error
}

func (e *LookupFailedError) Error() string {
	return fmt.Sprintf("pricing: %s lookup for %q failed: %v", e.Collaborator, e.Key, e.Err)
}

func (e *LookupFailedError) Unwrap() error { return e.Err }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
