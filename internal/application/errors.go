package application

import (
	"errors"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/planner"
)

var (
	// ErrNotFound is returned when the requested resource does not exist or
	// belongs to a different organization.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a create collides with an existing record.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrConflict is the slot-race sentinel. Errors carrying conflict detail
	// (*persistence.SlotConflictError) unwrap to it.
	ErrConflict = persistence.ErrConflict
	// ErrPlannerUnavailable is returned when the external assignment provider
	// cannot be reached. The operation can be retried later.
	ErrPlannerUnavailable = planner.ErrUnavailable
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// mapRepoError translates persistence sentinels into application errors.
// Conflict errors pass through unchanged so callers keep the conflicting
// entity detail.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrConflict) {
		return err
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return ErrNotFound
	}
	return err
}
