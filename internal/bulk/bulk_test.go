package bulk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shifpost/internal/model"
	"shifpost/internal/slot"
)

func keys(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(model.DateLayout))
	}
	return out
}

func TestTargetDates(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	dec := time.Date(2024, 12, 1, 0, 0, 0, 0, loc)

	tests := []struct {
		name     string
		weekdays []time.Weekday
		now      time.Time
		want     []string
	}{
		{
			name:     "whole month when now is earlier",
			weekdays: []time.Weekday{time.Saturday, time.Sunday},
			now:      time.Date(2024, 11, 20, 12, 0, 0, 0, loc),
			want: []string{
				"2024-12-01", "2024-12-07", "2024-12-08", "2024-12-14", "2024-12-15",
				"2024-12-21", "2024-12-22", "2024-12-28", "2024-12-29",
			},
		},
		{
			name:     "today is included, earlier days are not",
			weekdays: []time.Weekday{time.Monday},
			now:      time.Date(2024, 12, 16, 18, 30, 0, 0, loc),
			want:     []string{"2024-12-16", "2024-12-23", "2024-12-30"},
		},
		{
			name:     "now is read in the display zone",
			weekdays: []time.Weekday{time.Tuesday},
			// 2024-12-23 16:00 UTC is already the 24th in Tokyo.
			now:  time.Date(2024, 12, 23, 16, 0, 0, 0, time.UTC),
			want: []string{"2024-12-24", "2024-12-31"},
		},
		{
			name:     "month already over",
			weekdays: []time.Weekday{time.Friday},
			now:      time.Date(2025, 1, 2, 0, 0, 0, 0, loc),
			want:     []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TargetDates(dec, tc.weekdays, tc.now, loc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, keys(got))
			for _, d := range got {
				assert.Equal(t, loc, d.Location())
				assert.Zero(t, d.Hour())
			}
		})
	}
}

func TestTargetDatesRequiresWeekdays(t *testing.T) {
	_, err := TargetDates(time.Now(), nil, time.Now(), time.UTC)
	assert.ErrorIs(t, err, ErrNoWeekdays)

	_, err = TargetDates(time.Now(), []time.Weekday{7}, time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestWeekdays(t *testing.T) {
	got, err := Weekdays([]int{1, 3, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Sunday}, got)

	_, err = Weekdays([]int{7})
	assert.Error(t, err)
	_, err = Weekdays([]int{-1})
	assert.Error(t, err)
}

func TestPaletteSlotsAreFourHours(t *testing.T) {
	require.Len(t, Palette, 10)
	for _, s := range Palette {
		assert.Equal(t, 4.0, slot.Hours(s), s)
	}
}
