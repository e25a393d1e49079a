package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/practice-scheduler/internal/persistence"
)

func testDirectory() Directory {
	staff := []persistence.Staff{
		{ID: "staff-f", OrganizationID: "org-1", Gender: "female", Certifications: []string{"BCBA"}},
		{ID: "staff-m", OrganizationID: "org-1", Gender: "male", Certifications: []string{"RBT"}},
	}
	patients := []persistence.Patient{
		{ID: "patient-1", OrganizationID: "org-1", Gender: "female"},
		{ID: "patient-2", OrganizationID: "org-1", Gender: "male", RequiredCertifications: []string{"BCBA"}},
	}
	rooms := []persistence.Room{
		{ID: "room-1", OrganizationID: "org-1"},
	}
	return BuildDirectory(staff, patients, rooms, time.UTC)
}

func session(id, staffID, patientID, start, end string, day int) persistence.Session {
	return persistence.Session{
		ID:             id,
		OrganizationID: "org-1",
		StaffID:        staffID,
		PatientID:      patientID,
		Date:           time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC),
		StartTime:      start,
		EndTime:        end,
		Status:         "scheduled",
	}
}

func TestEvaluateGenderPairing(t *testing.T) {
	t.Parallel()

	rule := persistence.Rule{
		ID:       "rule-1",
		Category: CategoryGenderPairing,
		Logic:    `{"patient_gender":"female","required_staff_gender":"female","priority":"required"}`,
	}
	sessions := []persistence.Session{
		session("s-ok", "staff-f", "patient-1", "09:00", "10:00", 2),
		session("s-bad", "staff-m", "patient-1", "10:00", "11:00", 2),
		session("s-other", "staff-m", "patient-2", "11:00", "12:00", 2),
	}

	violations, err := Evaluate([]persistence.Rule{rule}, sessions, testDirectory())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "s-bad", violations[0].SessionID)
	assert.Equal(t, PriorityRequired, violations[0].Priority)
	assert.Equal(t, CategoryGenderPairing, violations[0].Category)
}

func TestEvaluateCertificationIncludesPatientRequirements(t *testing.T) {
	t.Parallel()

	rule := persistence.Rule{
		ID:       "rule-cert",
		Category: CategoryCertification,
		Logic:    `{"required_certifications":[],"priority":"required"}`,
	}
	// patient-2 requires BCBA; staff-m only holds RBT.
	sessions := []persistence.Session{
		session("s-1", "staff-m", "patient-2", "09:00", "10:00", 2),
		session("s-2", "staff-f", "patient-2", "10:00", "11:00", 2),
	}

	violations, err := Evaluate([]persistence.Rule{rule}, sessions, testDirectory())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "s-1", violations[0].SessionID)
	assert.Contains(t, violations[0].Message, "BCBA")
}

func TestEvaluateSessionTiming(t *testing.T) {
	t.Parallel()

	rule := persistence.Rule{
		ID:       "rule-timing",
		Category: CategorySession,
		Logic:    `{"max_sessions_per_day":2,"min_gap_minutes":30,"priority":"preferred"}`,
	}
	sessions := []persistence.Session{
		session("s-1", "staff-f", "patient-1", "09:00", "10:00", 2),
		// only 15 minutes after s-1 ends
		session("s-2", "staff-f", "patient-2", "10:15", "11:00", 2),
		// third session of the day
		session("s-3", "staff-f", "patient-1", "13:00", "14:00", 2),
		// different staff, unaffected
		session("s-4", "staff-m", "patient-2", "09:00", "10:00", 2),
		// different day, unaffected
		session("s-5", "staff-f", "patient-1", "09:00", "10:00", 3),
	}

	violations, err := Evaluate([]persistence.Rule{rule}, sessions, testDirectory())
	require.NoError(t, err)

	ids := make(map[string]int)
	for _, v := range violations {
		ids[v.SessionID]++
		assert.Equal(t, PriorityPreferred, v.Priority)
	}
	assert.Equal(t, 1, ids["s-3"], "overflow session flagged")
	assert.Equal(t, 1, ids["s-2"], "too-small gap flagged")
	assert.Len(t, violations, 2)
}

func TestEvaluateAvailabilityWindow(t *testing.T) {
	t.Parallel()

	rule := persistence.Rule{
		ID:       "rule-window",
		Category: CategoryAvailability,
		Logic:    `{"days":["monday","tuesday"],"start_time":"09:00","end_time":"17:00","priority":"required"}`,
	}
	sessions := []persistence.Session{
		// 2025-06-02 is a Monday
		session("s-ok", "staff-f", "patient-1", "09:00", "10:00", 2),
		session("s-early", "staff-f", "patient-1", "08:00", "09:00", 3),
		// 2025-06-04 is a Wednesday
		session("s-wrong-day", "staff-f", "patient-1", "10:00", "11:00", 4),
	}

	violations, err := Evaluate([]persistence.Rule{rule}, sessions, testDirectory())
	require.NoError(t, err)
	require.Len(t, violations, 2)

	bySession := make(map[string]Violation)
	for _, v := range violations {
		bySession[v.SessionID] = v
	}
	assert.Contains(t, bySession["s-early"].Message, "outside the allowed window")
	assert.Contains(t, bySession["s-wrong-day"].Message, "wednesday")
}

func TestEvaluateSpecificPairing(t *testing.T) {
	t.Parallel()

	require_ := persistence.Rule{
		ID:       "rule-require",
		Category: CategorySpecificPairing,
		Priority: 10,
		Logic:    `{"patient_id":"patient-1","staff_id":"staff-f","mode":"require","priority":"required"}`,
	}
	forbid := persistence.Rule{
		ID:       "rule-forbid",
		Category: CategorySpecificPairing,
		Priority: 20,
		Logic:    `{"patient_id":"patient-2","staff_id":"staff-m","mode":"forbid","priority":"preferred"}`,
	}
	sessions := []persistence.Session{
		session("s-1", "staff-m", "patient-1", "09:00", "10:00", 2),
		session("s-2", "staff-f", "patient-1", "10:00", "11:00", 2),
		session("s-3", "staff-m", "patient-2", "11:00", "12:00", 2),
	}

	violations, err := Evaluate([]persistence.Rule{require_, forbid}, sessions, testDirectory())
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, "s-1", violations[0].SessionID)
	assert.Equal(t, "s-3", violations[1].SessionID)
}

func TestEvaluateSkipsTerminalSessions(t *testing.T) {
	t.Parallel()

	rule := persistence.Rule{
		ID:       "rule-1",
		Category: CategoryGenderPairing,
		Logic:    `{"patient_gender":"female","required_staff_gender":"female"}`,
	}
	cancelled := session("s-cancelled", "staff-m", "patient-1", "09:00", "10:00", 2)
	cancelled.Status = "cancelled"

	violations, err := Evaluate([]persistence.Rule{rule}, []persistence.Session{cancelled}, testDirectory())
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestEvaluateOrdersByRulePriority(t *testing.T) {
	t.Parallel()

	later := persistence.Rule{
		ID:       "rule-b",
		Category: CategoryGenderPairing,
		Priority: 20,
		Logic:    `{"required_staff_gender":"female","priority":"preferred"}`,
	}
	first := persistence.Rule{
		ID:       "rule-a",
		Category: CategorySpecificPairing,
		Priority: 10,
		Logic:    `{"patient_id":"patient-2","staff_id":"staff-f","mode":"require","priority":"required"}`,
	}
	sessions := []persistence.Session{
		session("s-1", "staff-m", "patient-2", "09:00", "10:00", 2),
	}

	violations, err := Evaluate([]persistence.Rule{later, first}, sessions, testDirectory())
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, "rule-a", violations[0].RuleID)
	assert.Equal(t, "rule-b", violations[1].RuleID)
}

func TestEvaluateRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rule persistence.Rule
	}{
		{
			name: "unknown category",
			rule: persistence.Rule{ID: "r", Category: "lunch_break", Logic: `{}`},
		},
		{
			name: "invalid json",
			rule: persistence.Rule{ID: "r", Category: CategoryGenderPairing, Logic: `{`},
		},
		{
			name: "missing staff gender",
			rule: persistence.Rule{ID: "r", Category: CategoryGenderPairing, Logic: `{"patient_gender":"female"}`},
		},
		{
			name: "bad priority value",
			rule: persistence.Rule{ID: "r", Category: CategoryGenderPairing, Logic: `{"required_staff_gender":"female","priority":"mandatory"}`},
		},
		{
			name: "bad pairing mode",
			rule: persistence.Rule{ID: "r", Category: CategorySpecificPairing, Logic: `{"patient_id":"p","staff_id":"s","mode":"maybe"}`},
		},
		{
			name: "negative timing values",
			rule: persistence.Rule{ID: "r", Category: CategorySession, Logic: `{"max_sessions_per_day":-1}`},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Evaluate([]persistence.Rule{tc.rule}, nil, testDirectory())
			assert.Error(t, err)
		})
	}
}

func TestCheckReviewGate(t *testing.T) {
	t.Parallel()

	clean := []persistence.Rule{{ID: "rule-1"}, {ID: "rule-2"}}
	assert.NoError(t, CheckReviewGate(clean))

	flagged := []persistence.Rule{{ID: "rule-1"}, {ID: "rule-2", RequiresReview: true}}
	err := CheckReviewGate(flagged)
	var review *ReviewRequiredError
	require.ErrorAs(t, err, &review)
	assert.Equal(t, []string{"rule-2"}, review.RuleIDs)
	assert.Contains(t, err.Error(), "rule-2")
}

func TestViolationFilters(t *testing.T) {
	t.Parallel()

	violations := []Violation{
		{RuleID: "a", SessionID: "s-1", Priority: PriorityRequired},
		{RuleID: "b", SessionID: "s-2", Priority: PriorityPreferred},
		{RuleID: "c", SessionID: "s-1", Priority: PriorityPreferred},
	}

	forOne := ForSession(violations, "s-1")
	require.Len(t, forOne, 2)

	blocking := RequiredOnly(violations)
	require.Len(t, blocking, 1)
	assert.Equal(t, "a", blocking[0].RuleID)
}
