package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "shifpost/internal/log"
	"shifpost/internal/model"
	"shifpost/internal/slot"
)

const defaultMaxOccurrencesPerEvent = 400

// DaySlots is the imported availability of one date, ready to be upserted.
type DaySlots struct {
	Date      time.Time
	TimeSlots []string
}

// ImportResult is the outcome of Import.
type ImportResult struct {
	Days []DaySlots
	// Occurrences is the number of event instances that landed in the month.
	Occurrences int
	// Skipped counts instances that could not be expressed as a slot.
	Skipped int
}

// Import parses an iCalendar payload, expands recurring events inside the
// month of month and converts every occurrence into a slot on its local
// date in loc. Days come back sorted; slots within a day are unique and
// keep first-seen order.
func Import(body []byte, month time.Time, loc *time.Location) (ImportResult, error) {
	if loc == nil {
		loc = time.Local
	}
	events, err := Parse(body, loc)
	if err != nil {
		return ImportResult{}, err
	}

	monthStart := model.MonthStart(month, loc)
	nextMonth := monthStart.AddDate(0, 1, 0)

	var res ImportResult
	byDay := make(map[string]*DaySlots)
	var order []string

	add := func(date time.Time, s string) {
		key := date.Format(model.DateLayout)
		ds, ok := byDay[key]
		if !ok {
			ds = &DaySlots{Date: date}
			byDay[key] = ds
			order = append(order, key)
		}
		if !slices.Contains(ds.TimeSlots, s) {
			ds.TimeSlots = append(ds.TimeSlots, s)
		}
	}

	for _, ev := range events {
		for _, occ := range expandEvent(ev, monthStart, nextMonth) {
			if occ.AllDay {
				// One all-day slot per covered date inside the month.
				for d := model.DateOf(occ.Start, loc); d.Before(occ.End) && d.Before(nextMonth); d = d.AddDate(0, 0, 1) {
					if d.Before(monthStart) {
						continue
					}
					add(d, slot.AllDay)
					res.Occurrences++
				}
				continue
			}

			start := occ.Start.In(loc)
			end := occ.End.In(loc)
			date := model.DateOf(start, loc)
			if date.Before(monthStart) || !date.Before(nextMonth) {
				continue
			}
			if end.Sub(start) > 24*time.Hour {
				res.Skipped++
				appLog.Debug("ics import: event longer than a day", "uid", ev.UID, "start", start)
				continue
			}
			s := slot.Slot{
				Start: slot.Clock{Hour: start.Hour(), Minute: start.Minute()},
				End:   slot.Clock{Hour: end.Hour(), Minute: end.Minute()},
			}
			add(date, s.String())
			res.Occurrences++
		}
	}

	slices.Sort(order)
	for _, key := range order {
		res.Days = append(res.Days, *byDay[key])
	}
	return res, nil
}

// expandEvent returns the instances of ev that start inside
// [rangeStart, rangeEnd). All-day events that began earlier but still
// cover the range are kept too.
func expandEvent(ev ParsedEvent, rangeStart, rangeEnd time.Time) []ParsedEvent {
	if ev.RawRRule == "" {
		if ev.End.After(rangeStart) && ev.Start.Before(rangeEnd) {
			return []ParsedEvent{ev}
		}
		return nil
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics import: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Widen the lower bound so an instance that started before the month
	// but still overlaps it is not lost.
	from := rangeStart.Add(-dur).In(ev.Start.Location())
	to := rangeEnd.In(ev.Start.Location())

	times := set.Between(from, to, true)
	if len(times) > defaultMaxOccurrencesPerEvent {
		appLog.Error("ics import: truncated occurrences", errors.New("max occurrences reached"),
			"uid", ev.UID, "cap", defaultMaxOccurrencesPerEvent)
		times = times[:defaultMaxOccurrencesPerEvent]
	}

	out := make([]ParsedEvent, 0, len(times))
	for _, t := range times {
		if !t.Before(rangeEnd) {
			continue
		}
		occ := ev
		occ.RawRRule = ""
		occ.Start = t
		occ.End = t.Add(dur)
		if !occ.End.After(rangeStart) {
			continue
		}
		out = append(out, occ)
	}
	return out
}
