// Package validate checks and sanitizes request input before it reaches
// the store.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"shifpost/internal/model"
	"shifpost/internal/slot"
)

// Input limits.
const (
	// MaxUserIDLength is the longest accepted user id, in characters.
	MaxUserIDLength = 255
	// MaxSlots caps the time slots stored for one date.
	MaxSlots = 10
	// MaxHourlyWage is the largest accepted hourly wage; it must also be > 0.
	MaxHourlyWage = 10000
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid input")

var (
	slotPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]-([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
	strict      = bluemonday.StrictPolicy()
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Sanitize removes every HTML tag from s and trims surrounding space.
// Entities produced by the sanitizer are decoded again so plain text
// round-trips unchanged.
func Sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// UserID sanitizes id and checks it is non-blank and at most
// MaxUserIDLength characters.
func UserID(id string) (string, error) {
	clean := Sanitize(id)
	switch {
	case clean == "":
		return "", invalid("user id is empty")
	case len([]rune(clean)) > MaxUserIDLength:
		return "", invalid("user id longer than %d characters", MaxUserIDLength)
	}
	return clean, nil
}

// TimeSlot reports whether raw is an "H:MM-H:MM" range or the all-day
// sentinel.
func TimeSlot(raw string) bool {
	return slot.IsAllDay(raw) || slotPattern.MatchString(strings.TrimSpace(raw))
}

// TimeSlots validates slots and returns them sanitized, with the all-day
// alias rewritten to the sentinel. An empty list is valid and means
// "delete this date".
func TimeSlots(slots []string) ([]string, error) {
	if len(slots) > MaxSlots {
		return nil, invalid("at most %d time slots per day, got %d", MaxSlots, len(slots))
	}
	out := make([]string, 0, len(slots))
	for _, raw := range slots {
		s := Sanitize(raw)
		if !TimeSlot(s) {
			return nil, invalid("time slot %q", s)
		}
		if slot.IsAllDay(s) {
			s = slot.AllDay
		}
		out = append(out, s)
	}
	return out, nil
}

// HourlyWage checks 0 < wage <= MaxHourlyWage.
func HourlyWage(wage float64) error {
	if !(wage > 0 && wage <= MaxHourlyWage) {
		return invalid("hourly wage must be in (0, %d], got %v", MaxHourlyWage, wage)
	}
	return nil
}

// Date parses a YYYY-MM-DD date as midnight in loc.
func Date(s string, loc *time.Location) (time.Time, error) {
	d, err := model.ParseDate(strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, invalid("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// Month parses a YYYY-MM month as its first day in loc.
func Month(s string, loc *time.Location) (time.Time, error) {
	m, err := model.ParseMonth(strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, invalid("month %q: want YYYY-MM", s)
	}
	return m, nil
}
