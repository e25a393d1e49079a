package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
)

// terminalStatusSet lists the session statuses that no longer occupy a slot.
const terminalStatusSet = "('completed', 'cancelled', 'late_cancel', 'no_show')"

// slotQuery describes one candidate slot claim. A nil staffID/roomID means
// the corresponding resource is not claimed; an empty patientID likewise.
// ignoreHoldID exempts the hold being consumed from its own conflict check;
// ignoreSessionID exempts the session being moved.
type slotQuery struct {
	organizationID  string
	date            time.Time
	startTime       string
	endTime         string
	staffID         *string
	patientID       string
	roomID          *string
	ignoreHoldID    string
	ignoreSessionID string
}

// findSlotConflict looks for a committed session or an active hold that
// overlaps the candidate claim on any shared resource. It must run inside
// the same transaction as the write it guards; the "HH:mm" columns are
// zero-padded so lexicographic comparison is minute comparison.
func findSlotConflict(tx *sql.Tx, helper *QueryHelper, q slotQuery, now time.Time) (*persistence.SlotConflictError, error) {
	if conflict, err := findSessionConflict(tx, helper, q); conflict != nil || err != nil {
		return conflict, err
	}
	return findHoldConflict(tx, helper, q, now)
}

func findSessionConflict(tx *sql.Tx, helper *QueryHelper, q slotQuery) (*persistence.SlotConflictError, error) {
	var resourceConds []string
	var resourceArgs []interface{}
	if q.staffID != nil {
		resourceConds = append(resourceConds, "staff_id = ?")
		resourceArgs = append(resourceArgs, *q.staffID)
	}
	if q.patientID != "" {
		resourceConds = append(resourceConds, "patient_id = ?")
		resourceArgs = append(resourceArgs, q.patientID)
	}
	if q.roomID != nil {
		resourceConds = append(resourceConds, "room_id = ?")
		resourceArgs = append(resourceArgs, *q.roomID)
	}
	if len(resourceConds) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, staff_id, patient_id, room_id FROM sessions
		WHERE organization_id = ? AND date = ?
		AND start_time < ? AND end_time > ?
		AND status NOT IN ` + terminalStatusSet + `
		AND id != ?
		AND (` + strings.Join(resourceConds, " OR ") + `)
		LIMIT 1`
	args := append([]interface{}{
		q.organizationID, formatTime(q.date), q.endTime, q.startTime, q.ignoreSessionID,
	}, resourceArgs...)

	var id, staffID, patientID string
	var roomID sql.NullString
	err := helper.QueryRowTx(tx, query, args...).Scan(&id, &staffID, &patientID, &roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	resource := "room"
	switch {
	case q.staffID != nil && staffID == *q.staffID:
		resource = "staff"
	case q.patientID != "" && patientID == q.patientID:
		resource = "patient"
	}
	return &persistence.SlotConflictError{Resource: resource, SessionID: id}, nil
}

func findHoldConflict(tx *sql.Tx, helper *QueryHelper, q slotQuery, now time.Time) (*persistence.SlotConflictError, error) {
	var resourceConds []string
	var resourceArgs []interface{}
	if q.staffID != nil {
		resourceConds = append(resourceConds, "staff_id = ?")
		resourceArgs = append(resourceArgs, *q.staffID)
	}
	if q.roomID != nil {
		resourceConds = append(resourceConds, "room_id = ?")
		resourceArgs = append(resourceArgs, *q.roomID)
	}
	if len(resourceConds) == 0 {
		return nil, nil
	}

	// Activity condition mirrors persistence.HoldIsActive: not released, not
	// consumed, not yet expired.
	query := `
		SELECT id, staff_id, room_id FROM appointment_holds
		WHERE organization_id = ? AND date = ?
		AND start_time < ? AND end_time > ?
		AND released_at IS NULL AND consumed_at IS NULL AND expires_at > ?
		AND id != ?
		AND (` + strings.Join(resourceConds, " OR ") + `)
		LIMIT 1`
	args := append([]interface{}{
		q.organizationID, formatTime(q.date), q.endTime, q.startTime,
		formatTime(now), q.ignoreHoldID,
	}, resourceArgs...)

	var id string
	var staffID, roomID sql.NullString
	err := helper.QueryRowTx(tx, query, args...).Scan(&id, &staffID, &roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	resource := "room"
	if q.staffID != nil && staffID.Valid && staffID.String == *q.staffID {
		resource = "staff"
	}
	return &persistence.SlotConflictError{Resource: resource, HoldID: id}, nil
}
