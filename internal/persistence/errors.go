package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist or
	// belongs to a different organization.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when an insert collides with an existing
	// record.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a database CHECK constraint
	// rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a write references a missing
	// record.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConflict is returned when an atomic conditional write loses to an
	// overlapping hold or session.
	ErrConflict = errors.New("persistence: slot conflict")
)

// SlotConflictError reports the entity that blocked an atomic conditional
// write. Exactly one of HoldID/SessionID is set. It unwraps to ErrConflict.
type SlotConflictError struct {
	Resource  string // staff | patient | room
	HoldID    string
	SessionID string
}

// Error implements the error interface.
func (e *SlotConflictError) Error() string {
	if e == nil {
		return ErrConflict.Error()
	}
	if e.HoldID != "" {
		return fmt.Sprintf("persistence: slot conflict on %s with hold %s", e.Resource, e.HoldID)
	}
	if e.SessionID != "" {
		return fmt.Sprintf("persistence: slot conflict on %s with session %s", e.Resource, e.SessionID)
	}
	return fmt.Sprintf("persistence: slot conflict on %s", e.Resource)
}

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *SlotConflictError) Unwrap() error {
	return ErrConflict
}
