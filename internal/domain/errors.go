package domain

import "fmt"

// ValidationError reports a single malformed field on an inbound entity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// ConflictError reports an entity that already exists (idempotent no-op).
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %q already exists", e.Resource, e.Key)
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %q", e.Resource, e.Key)
}
