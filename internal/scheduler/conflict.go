// Package scheduler detects double-booking conflicts between sessions. It is
// the single overlap authority consulted by availability point-checks, hold
// creation, booking commits, and draft validation.
package scheduler

import (
	"time"

	"github.com/example/practice-scheduler/internal/timeslot"
)

// Booking is the conflict-relevant projection of a session or hold: who and
// what it occupies, on which local date, over which minute interval.
type Booking struct {
	ID        string
	StaffID   string
	PatientID string
	RoomID    *string
	Date      time.Time // start-of-day instant for the organization-local date
	StartMin  int       // minutes since local midnight, half-open interval
	EndMin    int
	Terminal  bool // completed/cancelled/late_cancel/no_show never conflict
}

// ConflictType describes which shared resource is double-booked.
type ConflictType string

const (
	// ConflictTypeStaff indicates the staff member is double-booked.
	ConflictTypeStaff ConflictType = "staff"
	// ConflictTypePatient indicates the patient is double-booked.
	ConflictTypePatient ConflictType = "patient"
	// ConflictTypeRoom indicates the room is double-booked.
	ConflictTypeRoom ConflictType = "room"
)

// Conflict details an overlapping booking relation that callers can present
// to users or embed in a conflict error.
type Conflict struct {
	WithBookingID string
	Type          ConflictType
	StaffID       string
	PatientID     string
	RoomID        *string
}

// DetectConflicts identifies conflicts for the candidate booking against
// existing ones. Bookings on different local dates never conflict, nor do
// terminal bookings or the candidate against itself (same ID, as when
// re-checking an edited session).
func DetectConflicts(existing []Booking, candidate Booking) []Conflict {
	if candidate.EndMin <= candidate.StartMin {
		return nil
	}

	var conflicts []Conflict
	for _, other := range existing {
		if other.Terminal || candidate.Terminal {
			continue
		}
		if other.ID != "" && other.ID == candidate.ID {
			continue
		}
		// Date is a start-of-local-day instant: equal instants mean the
		// same local date, even when a DST shift makes consecutive local
		// midnights share a UTC date.
		if !other.Date.Equal(candidate.Date) {
			continue
		}
		overlap, err := timeslot.Overlaps(candidate.StartMin, candidate.EndMin, other.StartMin, other.EndMin)
		if err != nil || !overlap {
			continue
		}

		if candidate.StaffID != "" && candidate.StaffID == other.StaffID {
			conflicts = append(conflicts, Conflict{
				WithBookingID: other.ID,
				Type:          ConflictTypeStaff,
				StaffID:       other.StaffID,
			})
		}
		if candidate.PatientID != "" && candidate.PatientID == other.PatientID {
			conflicts = append(conflicts, Conflict{
				WithBookingID: other.ID,
				Type:          ConflictTypePatient,
				PatientID:     other.PatientID,
			})
		}
		if candidate.RoomID != nil && other.RoomID != nil && *candidate.RoomID == *other.RoomID {
			roomID := *other.RoomID
			conflicts = append(conflicts, Conflict{
				WithBookingID: other.ID,
				Type:          ConflictTypeRoom,
				RoomID:        &roomID,
			})
		}
	}

	return conflicts
}

// HasConflict reports whether any conflict exists, short-circuiting callers
// that only need a boolean answer.
func HasConflict(existing []Booking, candidate Booking) bool {
	return len(DetectConflicts(existing, candidate)) > 0
}
