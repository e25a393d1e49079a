// Package rules evaluates organization-defined scheduling rules against
// candidate session lists. Rules are data, not code: each rule row carries a
// category and a category-specific JSON payload, decoded here into a typed
// payload so every evaluator can match its fields exhaustively.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/practice-scheduler/internal/persistence"
	"github.com/example/practice-scheduler/internal/statemachine"
	"github.com/example/practice-scheduler/internal/timeslot"
)

// Rule categories.
const (
	CategoryGenderPairing   = "gender_pairing"
	CategoryCertification   = "certification"
	CategorySession         = "session"
	CategoryAvailability    = "availability"
	CategorySpecificPairing = "specific_pairing"
)

// Priority governs how a violation is treated: required violations block or
// rewrite a session, preferred violations only produce warnings. The integer
// priority column on the rule row orders evaluation output and nothing else.
type Priority string

const (
	PriorityRequired  Priority = "required"
	PriorityPreferred Priority = "preferred"
)

// GenderPairing requires sessions for patients of PatientGender to be staffed
// by RequiredStaffGender. An empty PatientGender applies to every patient.
type GenderPairing struct {
	PatientGender       string   `json:"patient_gender"`
	RequiredStaffGender string   `json:"required_staff_gender"`
	Priority            Priority `json:"priority"`
}

// Certification requires the assigned staff to hold every listed
// certification, in addition to whatever the patient record itself requires.
type Certification struct {
	RequiredCertifications []string `json:"required_certifications"`
	Priority               Priority `json:"priority"`
}

// SessionTiming caps per-staff daily load and enforces a minimum gap between
// consecutive sessions for the same staff member. Zero values disable the
// corresponding check.
type SessionTiming struct {
	MaxSessionsPerDay int      `json:"max_sessions_per_day"`
	MinGapMinutes     int      `json:"min_gap_minutes"`
	Priority          Priority `json:"priority"`
}

// AvailabilityWindow restricts sessions to the listed weekdays and wall-clock
// window. Empty Days allows every day; empty StartTime/EndTime allows the
// whole day.
type AvailabilityWindow struct {
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Priority  Priority `json:"priority"`
}

// SpecificPairing pins (or bans) one patient/staff combination.
type SpecificPairing struct {
	PatientID string   `json:"patient_id"`
	StaffID   string   `json:"staff_id"`
	Mode      string   `json:"mode"` // require | forbid
	Priority  Priority `json:"priority"`
}

// Violation reports one session failing one rule.
type Violation struct {
	RuleID    string
	Category  string
	Priority  Priority
	SessionID string
	Message   string
}

// Directory is the read-only staff/patient/room snapshot evaluators consult.
// Location is the organization's timezone, used to resolve session dates to
// weekdays.
type Directory struct {
	Staff    map[string]persistence.Staff
	Patients map[string]persistence.Patient
	Rooms    map[string]persistence.Room
	Location *time.Location
}

// BuildDirectory indexes the slices by ID.
func BuildDirectory(staff []persistence.Staff, patients []persistence.Patient, rooms []persistence.Room, loc *time.Location) Directory {
	dir := Directory{
		Staff:    make(map[string]persistence.Staff, len(staff)),
		Patients: make(map[string]persistence.Patient, len(patients)),
		Rooms:    make(map[string]persistence.Room, len(rooms)),
		Location: loc,
	}
	for _, s := range staff {
		dir.Staff[s.ID] = s
	}
	for _, p := range patients {
		dir.Patients[p.ID] = p
	}
	for _, r := range rooms {
		dir.Rooms[r.ID] = r
	}
	return dir
}

// ReviewRequiredError blocks generation and regeneration while any active
// rule is flagged for manual review. It carries the flagged rule IDs; the
// gate runs before evaluation, so no violations exist yet.
type ReviewRequiredError struct {
	RuleIDs []string
}

// Error implements the error interface.
func (e *ReviewRequiredError) Error() string {
	return fmt.Sprintf("rules: %d rule(s) require manual review before scheduling can proceed: %s",
		len(e.RuleIDs), strings.Join(e.RuleIDs, ", "))
}

// CheckReviewGate returns a *ReviewRequiredError when any rule in the set has
// its requires-review flag set. Generation and regeneration call this before
// evaluating anything.
func CheckReviewGate(ruleSet []persistence.Rule) error {
	var flagged []string
	for _, rule := range ruleSet {
		if rule.RequiresReview {
			flagged = append(flagged, rule.ID)
		}
	}
	if len(flagged) == 0 {
		return nil
	}
	return &ReviewRequiredError{RuleIDs: flagged}
}

// Evaluate runs every rule against every non-terminal session and returns the
// violations ordered by the rule's integer priority (lower first), then rule
// ID, then session ID. A malformed or unknown payload is an error, not a
// silent skip.
func Evaluate(ruleSet []persistence.Rule, sessions []persistence.Session, dir Directory) ([]Violation, error) {
	active := make([]persistence.Session, 0, len(sessions))
	for _, session := range sessions {
		if statemachine.IsTerminal(statemachine.Status(session.Status)) {
			continue
		}
		active = append(active, session)
	}

	order := make(map[string]int, len(ruleSet))
	var violations []Violation
	for _, rule := range ruleSet {
		order[rule.ID] = rule.Priority
		found, err := evaluateRule(rule, active, dir)
		if err != nil {
			return nil, err
		}
		violations = append(violations, found...)
	}

	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if order[a.RuleID] != order[b.RuleID] {
			return order[a.RuleID] < order[b.RuleID]
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.SessionID < b.SessionID
	})
	return violations, nil
}

// ForSession filters violations down to one session.
func ForSession(violations []Violation, sessionID string) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.SessionID == sessionID {
			out = append(out, v)
		}
	}
	return out
}

// RequiredOnly filters violations down to those that block a session.
func RequiredOnly(violations []Violation) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Priority == PriorityRequired {
			out = append(out, v)
		}
	}
	return out
}

func evaluateRule(rule persistence.Rule, sessions []persistence.Session, dir Directory) ([]Violation, error) {
	switch rule.Category {
	case CategoryGenderPairing:
		var payload GenderPairing
		if err := decodePayload(rule, &payload); err != nil {
			return nil, err
		}
		return evaluateGenderPairing(rule, payload, sessions, dir)
	case CategoryCertification:
		var payload Certification
		if err := decodePayload(rule, &payload); err != nil {
			return nil, err
		}
		return evaluateCertification(rule, payload, sessions, dir)
	case CategorySession:
		var payload SessionTiming
		if err := decodePayload(rule, &payload); err != nil {
			return nil, err
		}
		return evaluateSessionTiming(rule, payload, sessions, dir.Location)
	case CategoryAvailability:
		var payload AvailabilityWindow
		if err := decodePayload(rule, &payload); err != nil {
			return nil, err
		}
		return evaluateAvailabilityWindow(rule, payload, sessions, dir.Location)
	case CategorySpecificPairing:
		var payload SpecificPairing
		if err := decodePayload(rule, &payload); err != nil {
			return nil, err
		}
		return evaluateSpecificPairing(rule, payload, sessions)
	default:
		return nil, fmt.Errorf("rules: rule %s has unknown category %q", rule.ID, rule.Category)
	}
}

func decodePayload(rule persistence.Rule, payload any) error {
	if err := json.Unmarshal([]byte(rule.Logic), payload); err != nil {
		return fmt.Errorf("rules: rule %s has malformed %s payload: %w", rule.ID, rule.Category, err)
	}
	return nil
}

// normalizePriority treats an absent priority as required, the safe default
// for a constraint somebody went to the trouble of writing down.
func normalizePriority(p Priority) (Priority, error) {
	switch p {
	case "":
		return PriorityRequired, nil
	case PriorityRequired, PriorityPreferred:
		return p, nil
	default:
		return "", fmt.Errorf("rules: unknown priority %q", p)
	}
}

func evaluateGenderPairing(rule persistence.Rule, payload GenderPairing, sessions []persistence.Session, dir Directory) ([]Violation, error) {
	priority, err := normalizePriority(payload.Priority)
	if err != nil {
		return nil, fmt.Errorf("rules: rule %s: %w", rule.ID, err)
	}
	if payload.RequiredStaffGender == "" {
		return nil, fmt.Errorf("rules: rule %s: gender_pairing payload missing required_staff_gender", rule.ID)
	}

	var out []Violation
	for _, session := range sessions {
		patient, ok := dir.Patients[session.PatientID]
		if !ok {
			continue
		}
		if payload.PatientGender != "" && !strings.EqualFold(patient.Gender, payload.PatientGender) {
			continue
		}
		staff, ok := dir.Staff[session.StaffID]
		if !ok || strings.EqualFold(staff.Gender, payload.RequiredStaffGender) {
			continue
		}
		out = append(out, Violation{
			RuleID:    rule.ID,
			Category:  rule.Category,
			Priority:  priority,
			SessionID: session.ID,
			Message: fmt.Sprintf("patient %s requires %s staff, session assigned to %s staff %s",
				patient.ID, payload.RequiredStaffGender, staff.Gender, staff.ID),
		})
	}
	return out, nil
}

func evaluateCertification(rule persistence.Rule, payload Certification, sessions []persistence.Session, dir Directory) ([]Violation, error) {
	priority, err := normalizePriority(payload.Priority)
	if err != nil {
		return nil, fmt.Errorf("rules: rule %s: %w", rule.ID, err)
	}

	var out []Violation
	for _, session := range sessions {
		staff, ok := dir.Staff[session.StaffID]
		if !ok {
			continue
		}
		held := make(map[string]bool, len(staff.Certifications))
		for _, cert := range staff.Certifications {
			held[strings.ToLower(cert)] = true
		}

		required := append([]string(nil), payload.RequiredCertifications...)
		if patient, ok := dir.Patients[session.PatientID]; ok {
			required = append(required, patient.RequiredCertifications...)
		}
		for _, cert := range required {
			if held[strings.ToLower(cert)] {
				continue
			}
			out = append(out, Violation{
				RuleID:    rule.ID,
				Category:  rule.Category,
				Priority:  priority,
				SessionID: session.ID,
				Message:   fmt.Sprintf("staff %s lacks certification %q", staff.ID, cert),
			})
		}
	}
	return out, nil
}

func evaluateSessionTiming(rule persistence.Rule, payload SessionTiming, sessions []persistence.Session, loc *time.Location) ([]Violation, error) {
	priority, err := normalizePriority(payload.Priority)
	if err != nil {
		return nil, fmt.Errorf("rules: rule %s: %w", rule.ID, err)
	}
	if payload.MaxSessionsPerDay < 0 || payload.MinGapMinutes < 0 {
		return nil, fmt.Errorf("rules: rule %s: session payload values must be non-negative", rule.ID)
	}

	type staffDay struct {
		staffID string
		day     string
	}
	byStaffDay := make(map[staffDay][]persistence.Session)
	for _, session := range sessions {
		key := staffDay{staffID: session.StaffID, day: timeslot.FormatLocalDate(session.Date, loc)}
		byStaffDay[key] = append(byStaffDay[key], session)
	}

	var out []Violation
	for key, daySessions := range byStaffDay {
		sort.Slice(daySessions, func(i, j int) bool {
			return daySessions[i].StartTime < daySessions[j].StartTime
		})

		if payload.MaxSessionsPerDay > 0 && len(daySessions) > payload.MaxSessionsPerDay {
			for _, session := range daySessions[payload.MaxSessionsPerDay:] {
				out = append(out, Violation{
					RuleID:    rule.ID,
					Category:  rule.Category,
					Priority:  priority,
					SessionID: session.ID,
					Message: fmt.Sprintf("staff %s has %d sessions on %s, maximum is %d",
						key.staffID, len(daySessions), key.day, payload.MaxSessionsPerDay),
				})
			}
		}

		if payload.MinGapMinutes > 0 {
			for i := 1; i < len(daySessions); i++ {
				prev, next := daySessions[i-1], daySessions[i]
				prevEnd, err := timeslot.ParseTimeOfDay(prev.EndTime)
				if err != nil {
					return nil, fmt.Errorf("rules: session %s: %w", prev.ID, err)
				}
				nextStart, err := timeslot.ParseTimeOfDay(next.StartTime)
				if err != nil {
					return nil, fmt.Errorf("rules: session %s: %w", next.ID, err)
				}
				if nextStart-prevEnd < payload.MinGapMinutes {
					out = append(out, Violation{
						RuleID:    rule.ID,
						Category:  rule.Category,
						Priority:  priority,
						SessionID: next.ID,
						Message: fmt.Sprintf("only %d minutes after session %s for staff %s, minimum gap is %d",
							nextStart-prevEnd, prev.ID, key.staffID, payload.MinGapMinutes),
					})
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func evaluateAvailabilityWindow(rule persistence.Rule, payload AvailabilityWindow, sessions []persistence.Session, loc *time.Location) ([]Violation, error) {
	priority, err := normalizePriority(payload.Priority)
	if err != nil {
		return nil, fmt.Errorf("rules: rule %s: %w", rule.ID, err)
	}

	allowedDays := make(map[string]bool, len(payload.Days))
	for _, day := range payload.Days {
		allowedDays[strings.ToLower(day)] = true
	}
	windowStart, windowEnd := 0, timeslot.MinutesPerDay
	if payload.StartTime != "" {
		if windowStart, err = timeslot.ParseTimeOfDay(payload.StartTime); err != nil {
			return nil, fmt.Errorf("rules: rule %s: %w", rule.ID, err)
		}
	}
	if payload.EndTime != "" {
		if windowEnd, err = timeslot.ParseTimeOfDay(payload.EndTime); err != nil {
			return nil, fmt.Errorf("rules: rule %s: %w", rule.ID, err)
		}
	}

	var out []Violation
	for _, session := range sessions {
		day := timeslot.WeekdayName(session.Date.In(loc).Weekday())
		if len(allowedDays) > 0 && !allowedDays[day] {
			out = append(out, Violation{
				RuleID:    rule.ID,
				Category:  rule.Category,
				Priority:  priority,
				SessionID: session.ID,
				Message:   fmt.Sprintf("sessions are not allowed on %s", day),
			})
			continue
		}
		start, err := timeslot.ParseTimeOfDay(session.StartTime)
		if err != nil {
			return nil, fmt.Errorf("rules: session %s: %w", session.ID, err)
		}
		end, err := timeslot.ParseTimeOfDay(session.EndTime)
		if err != nil {
			return nil, fmt.Errorf("rules: session %s: %w", session.ID, err)
		}
		if start < windowStart || end > windowEnd {
			out = append(out, Violation{
				RuleID:    rule.ID,
				Category:  rule.Category,
				Priority:  priority,
				SessionID: session.ID,
				Message: fmt.Sprintf("session %s-%s falls outside the allowed window %s-%s",
					session.StartTime, session.EndTime,
					timeslot.FormatTimeOfDay(windowStart), timeslot.FormatTimeOfDay(windowEnd)),
			})
		}
	}
	return out, nil
}

func evaluateSpecificPairing(rule persistence.Rule, payload SpecificPairing, sessions []persistence.Session) ([]Violation, error) {
	priority, err := normalizePriority(payload.Priority)
	if err != nil {
		return nil, fmt.Errorf("rules: rule %s: %w", rule.ID, err)
	}
	if payload.PatientID == "" || payload.StaffID == "" {
		return nil, fmt.Errorf("rules: rule %s: specific_pairing payload missing patient_id or staff_id", rule.ID)
	}
	if payload.Mode != "require" && payload.Mode != "forbid" {
		return nil, fmt.Errorf("rules: rule %s: specific_pairing mode must be require or forbid, got %q", rule.ID, payload.Mode)
	}

	var out []Violation
	for _, session := range sessions {
		if session.PatientID != payload.PatientID {
			continue
		}
		matches := session.StaffID == payload.StaffID
		if payload.Mode == "require" && !matches {
			out = append(out, Violation{
				RuleID:    rule.ID,
				Category:  rule.Category,
				Priority:  priority,
				SessionID: session.ID,
				Message:   fmt.Sprintf("patient %s must be seen by staff %s", payload.PatientID, payload.StaffID),
			})
		}
		if payload.Mode == "forbid" && matches {
			out = append(out, Violation{
				RuleID:    rule.ID,
				Category:  rule.Category,
				Priority:  priority,
				SessionID: session.ID,
				Message:   fmt.Sprintf("patient %s must not be seen by staff %s", payload.PatientID, payload.StaffID),
			})
		}
	}
	return out, nil
}
