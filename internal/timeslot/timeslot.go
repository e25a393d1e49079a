// Package timeslot provides the calendar arithmetic shared by every
// scheduling component: combining organization-local dates and wall-clock
// times into absolute instants, half-open interval overlap tests, and the
// local-date string boundary.
//
// All date comparisons elsewhere in the codebase must go through
// ParseLocalDateStart/ParseLocalDateEnd/FormatLocalDate rather than raw UTC
// arithmetic; the local-date/instant boundary is where timezone bugs live.
package timeslot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LocalDateLayout is the wire format for organization-local calendar dates.
const LocalDateLayout = "2006-01-02"

// MinutesPerDay bounds minute-of-day values produced by ParseTimeOfDay.
const MinutesPerDay = 24 * 60

var (
	// ErrInvalidInterval indicates an interval with end <= start.
	ErrInvalidInterval = errors.New("timeslot: interval end must be after start")
	// ErrInvalidTimeOfDay indicates a malformed HH:mm value.
	ErrInvalidTimeOfDay = errors.New("timeslot: invalid HH:mm time of day")
	// ErrInvalidDate indicates a malformed YYYY-MM-DD value.
	ErrInvalidDate = errors.New("timeslot: invalid YYYY-MM-DD date")
	// ErrInvalidWeekday indicates an unrecognized weekday name.
	ErrInvalidWeekday = errors.New("timeslot: invalid weekday name")
)

// ParseTimeOfDay converts an "HH:mm" wall-clock string into minutes since
// local midnight. "24:00" is accepted as the exclusive end-of-day bound.
func ParseTimeOfDay(value string) (int, error) {
	value = strings.TrimSpace(value)
	if len(value) != 5 || value[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	var hh, mm int
	if _, err := fmt.Sscanf(value, "%2d:%2d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	if hh < 0 || mm < 0 || mm > 59 || hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return hh*60 + mm, nil
}

// FormatTimeOfDay renders minutes since midnight as "HH:mm".
func FormatTimeOfDay(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AddMinutes shifts an "HH:mm" value by delta minutes, clamped to the day.
func AddMinutes(value string, delta int) (string, error) {
	minutes, err := ParseTimeOfDay(value)
	if err != nil {
		return "", err
	}
	minutes += delta
	if minutes < 0 || minutes > MinutesPerDay {
		return "", fmt.Errorf("%w: %q%+d exceeds the day", ErrInvalidTimeOfDay, value, delta)
	}
	return FormatTimeOfDay(minutes), nil
}

// Overlaps reports whether the half-open minute intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Zero-length or inverted intervals are invalid
// inputs, not silent non-overlaps.
func Overlaps(aStart, aEnd, bStart, bEnd int) (bool, error) {
	if aEnd <= aStart || bEnd <= bStart {
		return false, ErrInvalidInterval
	}
	return aStart < bEnd && bStart < aEnd, nil
}

// OverlapsInstants is the instant-valued counterpart of Overlaps.
func OverlapsInstants(aStart, aEnd, bStart, bEnd time.Time) (bool, error) {
	if !aEnd.After(aStart) || !bEnd.After(bStart) {
		return false, ErrInvalidInterval
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd), nil
}

// ToAbsoluteInstant combines a calendar date and an "HH:mm" wall-clock time
// under the provided location.
//
// Daylight-saving transitions resolve deterministically: a wall-clock time
// that does not exist (spring-forward gap) yields the next valid instant,
// and an ambiguous time (fall-back repeat) yields the later of the two
// interpretations.
func ToAbsoluteInstant(date time.Time, timeOfDay string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	minutes, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	year, month, day := date.In(loc).Date()
	candidate := time.Date(year, month, day, minutes/60, minutes%60, 0, 0, loc)

	if wallMinutes(candidate, loc) != minutes%MinutesPerDay || !sameLocalDate(candidate, year, month, day, loc) {
		// Spring-forward gap: walk forward to the first wall-clock minute
		// that exists. DST gaps are at most a couple of hours.
		for probe := minutes + 1; probe <= minutes+180; probe++ {
			next := time.Date(year, month, day, probe/60, probe%60, 0, 0, loc)
			if wallMinutes(next, loc) == probe%MinutesPerDay && sameLocalDate(next, year, month, day, loc) {
				return next, nil
			}
		}
		return time.Time{}, fmt.Errorf("timeslot: no valid instant for %s %s in %s",
			date.Format(LocalDateLayout), timeOfDay, loc)
	}

	// Fall-back ambiguity: the same wall clock may occur twice. Probe the
	// common repeat offsets and keep the latest instant with this reading.
	latest := candidate
	for _, delta := range []time.Duration{30 * time.Minute, time.Hour} {
		alt := candidate.Add(delta)
		if wallMinutes(alt, loc) == minutes%MinutesPerDay && sameLocalDate(alt, year, month, day, loc) {
			latest = alt
		}
	}
	return latest, nil
}

func wallMinutes(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

func sameLocalDate(t time.Time, year int, month time.Month, day int, loc *time.Location) bool {
	y, m, d := t.In(loc).Date()
	return y == year && m == month && d == day
}

// ParseLocalDateStart converts an organization-local "YYYY-MM-DD" string to
// the absolute instant at which that local day begins.
func ParseLocalDateStart(value string, loc *time.Location) (time.Time, error) {
	return parseLocalDate(value, loc)
}

// ParseLocalDateEnd converts an organization-local "YYYY-MM-DD" string to
// the absolute instant at which the following local day begins (exclusive
// end-of-day bound).
func ParseLocalDateEnd(value string, loc *time.Location) (time.Time, error) {
	start, err := parseLocalDate(value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, 1), nil
}

func parseLocalDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation(LocalDateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	// Normalize through time.Date so a DST transition at midnight (e.g.
	// America/Santiago) still yields the first instant of the local day.
	year, month, day := parsed.Date()
	return startOfLocalDay(year, month, day, loc), nil
}

func startOfLocalDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if y, m, d := start.Date(); y != year || m != month || d != day {
		// Midnight does not exist on this date; the day begins later.
		for probe := 1; probe <= 180; probe++ {
			next := time.Date(year, month, day, probe/60, probe%60, 0, 0, loc)
			if y, m, d := next.Date(); y == year && m == month && d == day {
				return next
			}
		}
	}
	return start
}

// FormatLocalDate renders an absolute instant as the organization-local
// "YYYY-MM-DD" calendar date it falls on.
func FormatLocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(LocalDateLayout)
}

// StartOfLocalDay truncates an instant to the beginning of its local day.
func StartOfLocalDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	year, month, day := t.In(loc).Date()
	return startOfLocalDay(year, month, day, loc)
}

// DateForDayOfWeek resolves the calendar date of the named weekday within
// the week beginning at weekStart (always a Monday) in the provided
// location. The arithmetic stays in the local calendar; it is not a UTC
// offset shift.
func DateForDayOfWeek(weekStart time.Time, dayName string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	offset, err := weekdayOffset(dayName)
	if err != nil {
		return time.Time{}, err
	}
	year, month, day := weekStart.In(loc).Date()
	base := startOfLocalDay(year, month, day, loc)
	if base.Weekday() != time.Monday {
		return time.Time{}, fmt.Errorf("timeslot: week start %s is not a Monday", base.Format(LocalDateLayout))
	}
	shifted := base.AddDate(0, 0, offset)
	y, m, d := shifted.Date()
	return startOfLocalDay(y, m, d, loc), nil
}

// WeekStartFor returns the Monday beginning the local week containing t.
func WeekStartFor(t time.Time, loc *time.Location) time.Time {
	start := StartOfLocalDay(t, loc)
	// In Go, Monday == 1 and Sunday == 0.
	offset := (int(start.Weekday()) + 6) % 7
	shifted := start.AddDate(0, 0, -offset)
	y, m, d := shifted.Date()
	return startOfLocalDay(y, m, d, loc)
}

func weekdayOffset(dayName string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(dayName)) {
	case "monday":
		return 0, nil
	case "tuesday":
		return 1, nil
	case "wednesday":
		return 2, nil
	case "thursday":
		return 3, nil
	case "friday":
		return 4, nil
	case "saturday":
		return 5, nil
	case "sunday":
		return 6, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, dayName)
}

// WeekdayName renders a time.Weekday using the lowercase names stored in
// business-hours and rule payloads.
func WeekdayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}
