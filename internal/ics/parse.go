package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "shifpost/internal/log"
)

// ParsedEvent is the normalized form of a VEVENT read from an imported
// calendar. Recurrences are expanded later by Import.
type ParsedEvent struct {
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
}

// Parse reads every VEVENT of an iCalendar payload. Events that cannot be
// interpreted are logged and skipped; only an unreadable document is an
// error. Floating and date-only values are read in loc.
func Parse(body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty calendar body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, loc)
		if perr != nil {
			appLog.Warn("ics import: skipping event", "err", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(startProp)

	start, err := propTime(startProp, loc)
	if err != nil {
		return out, err
	}
	out.Start = start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
		end, err := propTime(endProp, loc)
		if err != nil {
			return out, err
		}
		out.End = end
	} else if out.AllDay {
		out.End = start.AddDate(0, 0, 1)
	} else {
		out.End = start
	}

	if !out.End.After(out.Start) && !out.AllDay {
		// Matches the exporter: an end at or before the start is next day.
		out.End = out.End.AddDate(0, 0, 1)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseTime(part, tzidOf(p), loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzidOf(p *ical.IANAProperty) string {
	if tzs, ok := p.ICalParameters[string(ical.ParameterTzid)]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseTime(p.Value, tzidOf(p), loc)
}

// parseTime handles UTC, TZID-tagged, floating and date-only values.
// Unknown TZIDs fall back to loc.
func parseTime(v, tzid string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(localDateTimeLayout+"Z", v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}

	in := loc
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			in = l
		} else {
			appLog.Debug("ics import: unknown TZID, using display zone", "tzid", tzid)
		}
	}

	if strings.Contains(v, "T") {
		return time.ParseInLocation(localDateTimeLayout, v, in)
	}
	return time.ParseInLocation(dateLayout, v, in)
}
