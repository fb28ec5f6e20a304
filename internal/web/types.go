package web

import (
	"time"

	"shifpost/internal/model"
	"shifpost/internal/slot"
)

// shiftDTO is the JSON view of a stored shift. Dates are plain YYYY-MM-DD.
type shiftDTO struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	TimeSlots []string  `json:"time_slots"`
	Hours     float64   `json:"hours"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDTO(s model.Shift) shiftDTO {
	return shiftDTO{
		ID:        s.ID,
		Date:      s.Key(),
		TimeSlots: s.TimeSlots,
		Hours:     slot.TotalHours(s.TimeSlots),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

type shiftsResponse struct {
	Month  string     `json:"month,omitempty"`
	Shifts []shiftDTO `json:"shifts"`
}

type putShiftRequest struct {
	TimeSlots []string `json:"time_slots"`
}

type bulkRequest struct {
	Month     string   `json:"month"`
	Weekdays  []int    `json:"weekdays"`
	TimeSlots []string `json:"time_slots"`
}

type bulkResponse struct {
	Dates  []string `json:"dates"`
	Stored int      `json:"stored"`
}

type summaryResponse struct {
	Month           string  `json:"month"`
	HourlyWage      float64 `json:"hourly_wage"`
	Days            int     `json:"days"`
	TotalHours      float64 `json:"total_hours"`
	ProjectedIncome float64 `json:"projected_income"`
}

type importResponse struct {
	Dates       []string `json:"dates"`
	Occurrences int      `json:"occurrences"`
	Skipped     int      `json:"skipped"`
}

type paletteResponse struct {
	TimeSlots []string `json:"time_slots"`
	AllDay    string   `json:"all_day"`
}
