package models

import (
	"time"

	"github.com/google/uuid"
)

// GeoLocation is the JSON document passed to clock_in/clock_out and stored
// on time_entries.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// Location is a locations row.
type Location struct {
	ID           uuid.UUID `db:"id" json:"id"`
	EmployeeID   uuid.UUID `db:"employee_id" json:"employee_id"`
	TimeEntryID  uuid.UUID `db:"time_entry_id" json:"time_entry_id"`
	Latitude     float64   `db:"latitude" json:"latitude"`
	Longitude    float64   `db:"longitude" json:"longitude"`
	Accuracy     float64   `db:"accuracy" json:"accuracy"`
	Heading      *float64  `db:"heading" json:"heading,omitempty"`
	Speed        *float64  `db:"speed" json:"speed,omitempty"`
	BatteryLevel int       `db:"battery_level" json:"battery_level"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// LivePosition is the latest location of an employee with an open shift.
type LivePosition struct {
	EmployeeID   uuid.UUID   `json:"employee_id"`
	EmployeeName string      `json:"employee_name"`
	ShiftID      uuid.UUID   `json:"shift_id"`
	Status       ShiftStatus `json:"status"`
	ClockIn      time.Time   `json:"clock_in"`
	Location     *Location   `json:"location,omitempty"`
	Online       bool        `json:"online"`
}
