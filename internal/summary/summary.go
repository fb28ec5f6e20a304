// Package summary aggregates hours and projected income over shifts.
package summary

import (
	"time"

	"shifpost/internal/model"
	"shifpost/internal/slot"
)

// Compute sums the hours of every slot of every record and multiplies by
// hourlyWage. Nothing is rounded; presentation decides the precision.
func Compute(records []model.Shift, hourlyWage float64) model.MonthlySummary {
	var hours float64
	for _, r := range records {
		hours += slot.TotalHours(r.TimeSlots)
	}
	return model.MonthlySummary{
		TotalHours:      hours,
		ProjectedIncome: hours * hourlyWage,
	}
}

// MonthRange returns the first and last day of month's calendar month in loc.
func MonthRange(month time.Time, loc *time.Location) (start, end time.Time) {
	return model.MonthStart(month, loc), model.MonthEnd(month, loc)
}

// InMonth keeps the records whose date falls inside month, preserving order.
func InMonth(records []model.Shift, month time.Time, loc *time.Location) []model.Shift {
	start, end := MonthRange(month, loc)
	out := make([]model.Shift, 0, len(records))
	for _, r := range records {
		d := model.DateOf(r.Date, loc)
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}
