package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ShiftStatus is the lifecycle state of an employee's shift.
type ShiftStatus string

const (
	StatusIdle      ShiftStatus = "idle"
	StatusActive    ShiftStatus = "active"
	StatusBreak     ShiftStatus = "break"
	StatusCompleted ShiftStatus = "completed"
)

// ParseShiftStatus validates a status string coming from storage.
func ParseShiftStatus(s string) (ShiftStatus, error) {
	switch st := ShiftStatus(s); st {
	case StatusIdle, StatusActive, StatusBreak, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown shift status %q", s)
}

// Shift is a time_entries row.
type Shift struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	EmployeeID       uuid.UUID    `db:"employee_id" json:"employee_id"`
	ClockIn          time.Time    `db:"clock_in" json:"clock_in"`
	ClockOut         *time.Time   `db:"clock_out" json:"clock_out,omitempty"`
	Status           ShiftStatus  `db:"status" json:"status"`
	ClockInLocation  *GeoLocation `db:"clock_in_location" json:"clock_in_location,omitempty"`
	ClockOutLocation *GeoLocation `db:"clock_out_location" json:"clock_out_location,omitempty"`
	Notes            *string      `db:"notes" json:"notes,omitempty"`
}

// Break is a breaks row.
type Break struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TimeEntryID uuid.UUID  `db:"time_entry_id" json:"time_entry_id"`
	StartTime   time.Time  `db:"start_time" json:"start_time"`
	EndTime     *time.Time `db:"end_time" json:"end_time,omitempty"`
	Reason      string     `db:"reason" json:"reason"`
}

// HistoryEntry is a row of get_all_time_entries.
type HistoryEntry struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	EmployeeID   uuid.UUID     `db:"employee_id" json:"employee_id"`
	EmployeeName string        `db:"employee_name" json:"employee_name"`
	ClockIn      time.Time     `db:"clock_in" json:"clock_in"`
	ClockOut     *time.Time    `db:"clock_out" json:"clock_out,omitempty"`
	Status       ShiftStatus   `db:"status" json:"status"`
	BreakTime    time.Duration `db:"break_seconds" json:"break_seconds"`
	Notes        *string       `db:"notes" json:"notes,omitempty"`
}

// Worked is the shift length minus breaks. Open shifts count up to now.
func (h *HistoryEntry) Worked(now time.Time) time.Duration {
	end := now
	if h.ClockOut != nil {
		end = *h.ClockOut
	}
	d := end.Sub(h.ClockIn) - h.BreakTime
	if d < 0 {
		return 0
	}
	return d
}
