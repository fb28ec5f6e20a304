package model

import "time"

// DateLayout is the canonical key format for a shift date.
const DateLayout = "2006-01-02"

// Shift is one user's availability for a single calendar date.
// A Shift with no TimeSlots is never stored; saving an empty list deletes
// the date instead.
type Shift struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// Date is midnight of the shift day in the configured timezone.
	Date time.Time `json:"date"`

	// TimeSlots holds "HH:MM-HH:MM" ranges or the all-day sentinel, in the
	// order the user picked them.
	TimeSlots []string `json:"time_slots"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the date key (YYYY-MM-DD) the shift is stored under.
func (s Shift) Key() string {
	return s.Date.Format(DateLayout)
}

// MonthlySummary is derived from the shifts of a date range and is never
// stored.
type MonthlySummary struct {
	TotalHours      float64 `json:"total_hours"`
	ProjectedIncome float64 `json:"projected_income"`
}

// DateOf truncates t to midnight of its calendar day in loc.
// A nil loc keeps t's own location.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD string as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// MonthStart returns the first day of t's month at midnight in loc.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	d := DateOf(t, loc)
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
}

// MonthEnd returns the last calendar day of t's month at midnight in loc.
func MonthEnd(t time.Time, loc *time.Location) time.Time {
	return MonthStart(t, loc).AddDate(0, 1, -1)
}

// ParseMonth parses a YYYY-MM string into the first day of that month.
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation("2006-01", s, loc)
}
