// Package bulk selects the dates a bulk shift entry applies to.
package bulk

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"shifpost/internal/model"
)

// Palette is the fixed set of four-hour slots offered for quick entry.
var Palette = []string{
	"09:00-13:00",
	"10:00-14:00",
	"11:00-15:00",
	"12:00-16:00",
	"13:00-17:00",
	"14:00-18:00",
	"15:00-19:00",
	"16:00-20:00",
	"17:00-21:00",
	"18:00-22:00",
}

// ErrNoWeekdays is returned when a selection names no weekday.
var ErrNoWeekdays = errors.New("bulk: no weekdays selected")

var rruleDays = [7]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Weekdays converts day numbers (0 = Sunday ... 6 = Saturday) into
// time.Weekday values, dropping duplicates.
func Weekdays(days []int) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("bulk: weekday %d out of range 0-6", d)
		}
		wd := time.Weekday(d)
		if !slices.Contains(out, wd) {
			out = append(out, wd)
		}
	}
	return out, nil
}

// TargetDates returns every date of month (in loc) that falls on one of
// weekdays and is not before the local date of now, ascending.
func TargetDates(month time.Time, weekdays []time.Weekday, now time.Time, loc *time.Location) ([]time.Time, error) {
	if len(weekdays) == 0 {
		return nil, ErrNoWeekdays
	}
	if loc == nil {
		loc = time.Local
	}

	byDay := make([]rrule.Weekday, 0, len(weekdays))
	for _, wd := range weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return nil, fmt.Errorf("bulk: invalid weekday %d", wd)
		}
		byDay = append(byDay, rruleDays[wd])
	}

	start := model.MonthStart(month, loc)
	if today := model.DateOf(now, loc); today.After(start) {
		start = today
	}
	end := model.MonthEnd(month, loc)
	if start.After(end) {
		return nil, nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: byDay,
		Dtstart:   start,
		Until:     end,
	})
	if err != nil {
		return nil, fmt.Errorf("bulk: build rule: %w", err)
	}

	dates := r.All()
	for i, d := range dates {
		dates[i] = model.DateOf(d, loc)
	}
	return dates, nil
}
