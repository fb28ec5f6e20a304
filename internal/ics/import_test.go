package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shifpost/internal/model"
	"shifpost/internal/slot"
)

func calendar(events ...string) []byte {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//test//EN"}
	for _, ev := range events {
		lines = append(lines, "BEGIN:VEVENT")
		lines = append(lines, strings.Split(strings.TrimSpace(ev), "\n")...)
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func daysByKey(res ImportResult) map[string][]string {
	out := make(map[string][]string, len(res.Days))
	for _, d := range res.Days {
		out[d.Date.Format(model.DateLayout)] = d.TimeSlots
	}
	return out
}

func TestImportRoundTripsExport(t *testing.T) {
	loc := tokyo(t)
	month := time.Date(2024, 12, 1, 0, 0, 0, 0, loc)
	shifts := []model.Shift{
		shift(loc, 2024, 12, 15, "09:00-13:00", "14:00-18:00"),
		shift(loc, 2024, 12, 18, slot.AllDay),
		shift(loc, 2024, 12, 20, "23:00-01:00"),
	}

	doc, err := Export(shifts, month, testOptions(loc))
	require.NoError(t, err)

	res, err := Import(doc.Body, month, loc)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Occurrences)
	assert.Zero(t, res.Skipped)

	require.Len(t, res.Days, 3)
	for i, sh := range shifts {
		assert.Equal(t, sh.Date, res.Days[i].Date)
		assert.Equal(t, sh.TimeSlots, res.Days[i].TimeSlots)
	}
}

func TestImportExpandsRecurrence(t *testing.T) {
	loc := tokyo(t)
	body := calendar(`
UID:weekly@test
SUMMARY:Cafe
DTSTART;TZID=Asia/Tokyo:20241203T100000
DTEND;TZID=Asia/Tokyo:20241203T140000
RRULE:FREQ=WEEKLY;BYDAY=TU
EXDATE;TZID=Asia/Tokyo:20241217T100000
`)

	res, err := Import(body, time.Date(2024, 12, 1, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"2024-12-03": {"10:00-14:00"},
		"2024-12-10": {"10:00-14:00"},
		"2024-12-24": {"10:00-14:00"},
		"2024-12-31": {"10:00-14:00"},
	}, daysByKey(res))
}

func TestImportConvertsUTCToDisplayZone(t *testing.T) {
	loc := tokyo(t)
	// 2024-12-14 23:00Z is 2024-12-15 08:00 in Tokyo.
	body := calendar(`
UID:utc@test
DTSTART:20241214T230000Z
DTEND:20241215T030000Z
`)

	res, err := Import(body, time.Date(2024, 12, 1, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"2024-12-15": {"08:00-12:00"}}, daysByKey(res))
}

func TestImportMultiDayAllDayIsClippedToMonth(t *testing.T) {
	loc := tokyo(t)
	body := calendar(`
UID:trip@test
DTSTART;VALUE=DATE:20241230
DTEND;VALUE=DATE:20250103
`)

	res, err := Import(body, time.Date(2024, 12, 1, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"2024-12-30": {slot.AllDay},
		"2024-12-31": {slot.AllDay},
	}, daysByKey(res))

	res, err = Import(body, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.Len(t, res.Days, 2)
}

func TestImportSkipsUnusableEvents(t *testing.T) {
	loc := tokyo(t)
	body := calendar(`
UID:nostart@test
SUMMARY:no start
`, `
UID:long@test
DTSTART;TZID=Asia/Tokyo:20241210T090000
DTEND;TZID=Asia/Tokyo:20241212T090000
`, `
UID:dup-a@test
DTSTART;TZID=Asia/Tokyo:20241211T090000
DTEND;TZID=Asia/Tokyo:20241211T130000
`, `
UID:dup-b@test
DTSTART;TZID=Asia/Tokyo:20241211T090000
DTEND;TZID=Asia/Tokyo:20241211T130000
`)

	res, err := Import(body, time.Date(2024, 12, 1, 0, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, map[string][]string{"2024-12-11": {"09:00-13:00"}}, daysByKey(res))
}

func TestImportRejectsEmptyBody(t *testing.T) {
	_, err := Import(nil, time.Now(), time.UTC)
	assert.Error(t, err)
}
