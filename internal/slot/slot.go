// Package slot parses time-slot strings and turns them into durations.
//
// A slot is either the all-day sentinel or an "HH:MM-HH:MM" range on a
// 24-hour clock. A range whose end is not after its start crosses midnight.
package slot

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// AllDay is the sentinel stored for a whole-day shift.
	AllDay = "終日"
	// AllDayAlias is accepted on input and treated exactly like AllDay.
	AllDayAlias = "all-day"

	// AllDayHours is the fixed number of hours an all-day slot counts for.
	AllDayHours = 8.0
)

// ErrMalformed is returned by Parse for anything that is not a valid range
// or the all-day sentinel.
var ErrMalformed = errors.New("malformed time slot")

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Slot is a parsed time slot.
type Slot struct {
	AllDay bool
	Start  Clock
	End    Clock
}

// CrossesMidnight reports whether the range ends on the following day.
func (s Slot) CrossesMidnight() bool {
	return !s.AllDay && s.End.minutes() <= s.Start.minutes()
}

// Hours returns the slot length in hours, fractional minutes included.
func (s Slot) Hours() float64 {
	if s.AllDay {
		return AllDayHours
	}
	mins := s.End.minutes() - s.Start.minutes()
	if mins <= 0 {
		mins += 24 * 60
	}
	return float64(mins) / 60
}

func (s Slot) String() string {
	if s.AllDay {
		return AllDay
	}
	return s.Start.String() + "-" + s.End.String()
}

// IsAllDay reports whether raw is the all-day sentinel or its alias.
func IsAllDay(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == AllDay || strings.EqualFold(raw, AllDayAlias)
}

// Parse parses raw into a Slot. Surrounding whitespace is ignored; single
// digit hours ("9:00") are accepted.
func Parse(raw string) (Slot, error) {
	if IsAllDay(raw) {
		return Slot{AllDay: true}, nil
	}

	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return Slot{}, fmt.Errorf("%w: %q has no range separator", ErrMalformed, raw)
	}

	start, err := parseClock(startRaw)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: %q start: %v", ErrMalformed, raw, err)
	}
	end, err := parseClock(endRaw)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: %q end: %v", ErrMalformed, raw, err)
	}

	return Slot{Start: start, End: end}, nil
}

// Hours returns the duration of raw in hours. Malformed input counts as 0.
func Hours(raw string) float64 {
	s, err := Parse(raw)
	if err != nil {
		return 0
	}
	return s.Hours()
}

// TotalHours sums Hours over slots.
func TotalHours(slots []string) float64 {
	var total float64
	for _, raw := range slots {
		total += Hours(raw)
	}
	return total
}

func parseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, errors.New("missing ':'")
	}
	h, err := clockField(hh, 1)
	if err != nil {
		return Clock{}, err
	}
	m, err := clockField(mm, 2)
	if err != nil {
		return Clock{}, err
	}
	if h > 23 || m > 59 {
		return Clock{}, fmt.Errorf("%02d:%02d out of range", h, m)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// clockField reads an unsigned field of minDigits to two ASCII digits.
func clockField(s string, minDigits int) (int, error) {
	if len(s) < minDigits || len(s) > 2 {
		return 0, fmt.Errorf("%q: want %d-2 digits", s, minDigits)
	}
	n := 0
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q: not a number", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
