package ics

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	ical "github.com/arran4/golang-ical"

	appLog "shifpost/internal/log"
	"shifpost/internal/model"
	"shifpost/internal/slot"
)

const (
	// ContentType is the MIME type of an exported calendar file.
	ContentType = "text/calendar; charset=utf-8"

	localDateTimeLayout = "20060102T150405"
	dateLayout          = "20060102"
)

// ExportOptions controls the calendar metadata of an export.
type ExportOptions struct {
	// Product is used for the file name prefix and the UID domain,
	// e.g. "shif-post".
	Product string
	// ProductID is the PRODID property.
	ProductID string
	// CalendarName and Description become X-WR-CALNAME / X-WR-CALDESC.
	CalendarName string
	Description  string

	// Location is the fixed zone every timed event is tagged with.
	Location *time.Location

	// EventSummary is formatted with the slot string, e.g. "シフト勤務 (%s)".
	EventSummary     string
	EventDescription string

	// Now stamps DTSTAMP. Defaults to time.Now.
	Now func() time.Time
}

// DefaultExportOptions returns the options used when the config does not
// override them.
func DefaultExportOptions(loc *time.Location) ExportOptions {
	return ExportOptions{
		Product:          "shif-post",
		ProductID:        "-//Shif-Post//Shift Calendar//JP",
		CalendarName:     "Shif-Post シフト表",
		Description:      "Shif-Postで作成されたシフト表",
		Location:         loc,
		EventSummary:     "シフト勤務 (%s)",
		EventDescription: "Shif-Postで登録されたシフト",
		Now:              time.Now,
	}
}

func (o *ExportOptions) normalize() {
	def := DefaultExportOptions(time.Local)
	if o.Location == nil {
		o.Location = def.Location
	}
	if o.Product == "" {
		o.Product = def.Product
	}
	if o.ProductID == "" {
		o.ProductID = def.ProductID
	}
	if o.CalendarName == "" {
		o.CalendarName = def.CalendarName
	}
	if o.Description == "" {
		o.Description = def.Description
	}
	if o.EventSummary == "" {
		o.EventSummary = def.EventSummary
	}
	if o.EventDescription == "" {
		o.EventDescription = def.EventDescription
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Document is a rendered calendar file.
type Document struct {
	Body        []byte
	Filename    string
	ContentType string

	// Events is the number of VEVENTs written; Skipped counts malformed
	// slots that produced no event.
	Events  int
	Skipped int
}

// Filename returns "<product>-<year>-<MM>.ics" for month.
func Filename(product string, month time.Time) string {
	return fmt.Sprintf("%s-%04d-%02d.ics", product, month.Year(), int(month.Month()))
}

// Export serializes the shifts of month into an iCalendar document with
// one VEVENT per (shift, slot). Shifts outside month are ignored and
// malformed slots are skipped without error.
func Export(shifts []model.Shift, month time.Time, opts ExportOptions) (Document, error) {
	opts.normalize()
	loc := opts.Location

	monthStart := model.MonthStart(month, loc)
	monthEnd := model.MonthEnd(month, loc)

	cal := ical.NewCalendar()
	cal.SetVersion("2.0")
	cal.SetProductId(opts.ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(clean(opts.CalendarName))
	cal.SetXWRTimezone(loc.String())
	cal.SetXWRCalDesc(clean(opts.Description))
	// Slots on the last day may run past midnight.
	addTimezone(cal, loc, monthStart, monthEnd.AddDate(0, 0, 2))

	stamp := opts.Now().UTC()
	doc := Document{
		Filename:    Filename(opts.Product, monthStart),
		ContentType: ContentType,
	}

	for _, sh := range shifts {
		date := model.DateOf(sh.Date, loc)
		if date.Before(monthStart) || date.After(monthEnd) {
			continue
		}

		for idx, raw := range sh.TimeSlots {
			s, err := slot.Parse(raw)
			if err != nil {
				doc.Skipped++
				appLog.Debug("ics export: skipping malformed slot", "date", sh.Key(), "slot", raw)
				continue
			}

			uid := fmt.Sprintf("shift-%d-%d@%s.app", date.UnixMilli(), idx, opts.Product)
			ev := cal.AddEvent(uid)
			ev.SetDtStampTime(stamp)

			if s.AllDay {
				ev.SetAllDayStartAt(date)
				ev.SetAllDayEndAt(date.AddDate(0, 0, 1))
			} else {
				start, end := eventBounds(date, s)
				tzid := &ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{loc.String()}}
				ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(localDateTimeLayout), tzid)
				ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(localDateTimeLayout), tzid)
			}

			ev.SetSummary(clean(fmt.Sprintf(opts.EventSummary, s.String())))
			ev.SetDescription(clean(opts.EventDescription))
			ev.SetStatus(ical.ObjectStatusConfirmed)
			ev.SetProperty(ical.ComponentProperty("TRANSP"), "OPAQUE")
			doc.Events++
		}
	}

	doc.Body = []byte(cal.Serialize(ical.WithNewLineWindows))
	return doc, nil
}

// eventBounds places a timed slot on date. An end that is not after the
// start is moved to the next day.
func eventBounds(date time.Time, s slot.Slot) (time.Time, time.Time) {
	loc := date.Location()
	start := time.Date(date.Year(), date.Month(), date.Day(), s.Start.Hour, s.Start.Minute, 0, 0, loc)
	end := time.Date(date.Year(), date.Month(), date.Day(), s.End.Hour, s.End.Minute, 0, 0, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}

// addTimezone writes a VTIMEZONE for loc covering [from, to). It holds the
// observance in effect at from plus one STANDARD or DAYLIGHT block per
// offset change inside the window.
func addTimezone(cal *ical.Calendar, loc *time.Location, from, to time.Time) {
	tz := ical.NewTimezone(loc.String())

	at := from.In(loc)
	for {
		zoneStart, zoneEnd := at.ZoneBounds()
		tz.Components = append(tz.Components, observance(at, zoneStart))
		if zoneEnd.IsZero() || !zoneEnd.Before(to) {
			break
		}
		at = zoneEnd.In(loc)
	}

	cal.AddVTimezone(tz)
}

// observance describes the zone period that contains at and began at start.
// A zero start means the zone never changed offset.
func observance(at, start time.Time) ical.Component {
	name, offset := at.Zone()
	prevOffset := offset
	onset := "19700101T000000"
	if !start.IsZero() {
		_, prevOffset = start.Add(-time.Second).Zone()
		onset = start.In(time.FixedZone("", prevOffset)).Format(localDateTimeLayout)
	}

	var base *ical.ComponentBase
	var c ical.Component
	if at.IsDST() {
		d := &ical.Daylight{}
		base, c = &d.ComponentBase, d
	} else {
		std := ical.NewStandard()
		base, c = &std.ComponentBase, std
	}
	base.SetProperty(ical.ComponentProperty("DTSTART"), onset)
	base.SetProperty(ical.ComponentProperty("TZOFFSETFROM"), formatOffset(prevOffset))
	base.SetProperty(ical.ComponentProperty("TZOFFSETTO"), formatOffset(offset))
	base.SetProperty(ical.ComponentProperty("TZNAME"), name)
	return c
}

func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}

// clean replaces control characters so free text can never break the
// line-oriented format.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}
