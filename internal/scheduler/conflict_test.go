package scheduler

import (
	"testing"
	"time"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("failed to parse date %q: %v", value, err)
	}
	return parsed
}

func TestDetectConflicts(t *testing.T) {
	roomA := "room-a"
	roomB := "room-b"

	t.Run("staff overlap produces conflict", func(t *testing.T) {
		existing := []Booking{{
			ID:       "session-1",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 540,
			EndMin:   570,
		}}
		candidate := Booking{
			ID:       "session-2",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 555,
			EndMin:   585,
		}

		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 1 {
			t.Fatalf("expected one conflict, got %v", conflicts)
		}
		if conflicts[0].Type != ConflictTypeStaff {
			t.Fatalf("expected staff conflict, got %s", conflicts[0].Type)
		}
		if conflicts[0].WithBookingID != "session-1" {
			t.Fatalf("expected conflict with session-1, got %s", conflicts[0].WithBookingID)
		}
	})

	t.Run("patient overlap produces conflict", func(t *testing.T) {
		existing := []Booking{{
			ID:        "session-1",
			StaffID:   "staff-1",
			PatientID: "patient-1",
			Date:      day(t, "2025-06-02"),
			StartMin:  540,
			EndMin:    570,
		}}
		candidate := Booking{
			ID:        "session-2",
			StaffID:   "staff-2",
			PatientID: "patient-1",
			Date:      day(t, "2025-06-02"),
			StartMin:  540,
			EndMin:    570,
		}

		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 1 {
			t.Fatalf("expected one conflict, got %v", conflicts)
		}
		if conflicts[0].Type != ConflictTypePatient {
			t.Fatalf("expected patient conflict, got %s", conflicts[0].Type)
		}
	})

	t.Run("room overlap produces conflict", func(t *testing.T) {
		existing := []Booking{{
			ID:       "session-1",
			StaffID:  "staff-1",
			RoomID:   &roomA,
			Date:     day(t, "2025-06-02"),
			StartMin: 540,
			EndMin:   570,
		}}
		candidate := Booking{
			ID:       "session-2",
			StaffID:  "staff-2",
			RoomID:   &roomA,
			Date:     day(t, "2025-06-02"),
			StartMin: 550,
			EndMin:   580,
		}

		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 1 {
			t.Fatalf("expected one conflict, got %v", conflicts)
		}
		if conflicts[0].Type != ConflictTypeRoom {
			t.Fatalf("expected room conflict, got %s", conflicts[0].Type)
		}
		if conflicts[0].RoomID == nil || *conflicts[0].RoomID != roomA {
			t.Fatalf("expected conflict room %s, got %v", roomA, conflicts[0].RoomID)
		}
	})

	t.Run("shared slot with distinct resources yields no conflicts", func(t *testing.T) {
		existing := []Booking{{
			ID:        "session-1",
			StaffID:   "staff-1",
			PatientID: "patient-1",
			RoomID:    &roomA,
			Date:      day(t, "2025-06-02"),
			StartMin:  540,
			EndMin:    570,
		}}
		candidate := Booking{
			ID:        "session-2",
			StaffID:   "staff-2",
			PatientID: "patient-2",
			RoomID:    &roomB,
			Date:      day(t, "2025-06-02"),
			StartMin:  540,
			EndMin:    570,
		}

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %v", conflicts)
		}
	})

	t.Run("non-overlapping bookings yield no conflicts", func(t *testing.T) {
		existing := []Booking{{
			ID:       "session-1",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 540,
			EndMin:   570,
		}}
		candidate := Booking{
			ID:       "session-2",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 570, // back to back, half-open intervals
			EndMin:   600,
		}

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %v", conflicts)
		}
	})

	t.Run("different dates never conflict", func(t *testing.T) {
		existing := []Booking{{
			ID:       "session-1",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 540,
			EndMin:   570,
		}}
		candidate := Booking{
			ID:       "session-2",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-03"),
			StartMin: 540,
			EndMin:   570,
		}

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %v", conflicts)
		}
	})

	t.Run("consecutive local dates across a DST change never conflict", func(t *testing.T) {
		london, err := time.LoadLocation("Europe/London")
		if err != nil {
			t.Fatalf("failed to load location: %v", err)
		}
		// Clocks go forward 2025-03-30 in London, so local midnight of the
		// 31st is 23:00 UTC on the 30th and both midnights share a UTC date.
		existing := []Booking{{
			ID:       "session-1",
			StaffID:  "staff-1",
			Date:     time.Date(2025, time.March, 30, 0, 0, 0, 0, london),
			StartMin: 540,
			EndMin:   570,
		}}
		candidate := Booking{
			ID:       "session-2",
			StaffID:  "staff-1",
			Date:     time.Date(2025, time.March, 31, 0, 0, 0, 0, london),
			StartMin: 540,
			EndMin:   570,
		}

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts across local dates, got %v", conflicts)
		}
	})

	t.Run("terminal bookings are ignored", func(t *testing.T) {
		existing := []Booking{{
			ID:       "session-1",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 540,
			EndMin:   570,
			Terminal: true,
		}}
		candidate := Booking{
			ID:       "session-2",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 540,
			EndMin:   570,
		}

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts against terminal booking, got %v", conflicts)
		}
	})

	t.Run("candidate is not compared against itself", func(t *testing.T) {
		existing := []Booking{{
			ID:       "session-1",
			StaffID:  "staff-1",
			Date:     day(t, "2025-06-02"),
			StartMin: 540,
			EndMin:   570,
		}}
		candidate := existing[0]

		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no self conflict, got %v", conflicts)
		}
	})

	t.Run("multiple conflicts are all reported", func(t *testing.T) {
		existing := []Booking{
			{ID: "session-1", StaffID: "staff-1", Date: day(t, "2025-06-02"), StartMin: 540, EndMin: 600},
			{ID: "session-2", PatientID: "patient-1", Date: day(t, "2025-06-02"), StartMin: 540, EndMin: 600},
		}
		candidate := Booking{
			ID:        "session-3",
			StaffID:   "staff-1",
			PatientID: "patient-1",
			Date:      day(t, "2025-06-02"),
			StartMin:  555,
			EndMin:    585,
		}

		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 2 {
			t.Fatalf("expected two conflicts, got %v", conflicts)
		}
	})
}

func TestHasConflict(t *testing.T) {
	existing := []Booking{{
		ID:       "session-1",
		StaffID:  "staff-1",
		Date:     day(t, "2025-06-02"),
		StartMin: 540,
		EndMin:   570,
	}}

	if !HasConflict(existing, Booking{ID: "x", StaffID: "staff-1", Date: day(t, "2025-06-02"), StartMin: 550, EndMin: 580}) {
		t.Fatal("expected conflict")
	}
	if HasConflict(existing, Booking{ID: "x", StaffID: "staff-2", Date: day(t, "2025-06-02"), StartMin: 550, EndMin: 580}) {
		t.Fatal("expected no conflict")
	}
}
