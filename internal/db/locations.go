package db

import (
	"context"
	"fmt"
	"time"

	"timeclock/internal/db/models"

	"github.com/google/uuid"
)

// InsertLocation stores a location ping.
func (db *DB) InsertLocation(ctx context.Context, loc *models.Location) error {
	query := `
		INSERT INTO locations (employee_id, time_entry_id, latitude, longitude,
			accuracy, heading, speed, battery_level, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := db.Exec(ctx, query,
		loc.EmployeeID.String(),
		loc.TimeEntryID.String(),
		loc.Latitude,
		loc.Longitude,
		loc.Accuracy,
		loc.Heading,
		loc.Speed,
		loc.BatteryLevel,
		loc.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting location: %w", err)
	}
	return nil
}

// LivePositions returns every open shift with its latest location ping.
func (db *DB) LivePositions(ctx context.Context) ([]*models.LivePosition, error) {
	query := `
		SELECT
			t.id, t.employee_id, trim(e.first_name || ' ' || e.last_name), t.status, t.clock_in,
			l.id, l.latitude, l.longitude, l.accuracy, l.heading, l.speed, l.battery_level, l.recorded_at
		FROM time_entries t
		JOIN employees e ON e.id = t.employee_id
		LEFT JOIN LATERAL (
			SELECT id, latitude, longitude, accuracy, heading, speed, battery_level, recorded_at
			FROM locations
			WHERE time_entry_id = t.id
			ORDER BY recorded_at DESC
			LIMIT 1
		) l ON true
		WHERE t.clock_out IS NULL
		ORDER BY t.clock_in DESC`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error getting live positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.LivePosition
	for rows.Next() {
		var (
			p      = &models.LivePosition{}
			status string
			loc    nullableLocation
		)
		err := rows.Scan(
			&p.ShiftID,
			&p.EmployeeID,
			&p.EmployeeName,
			&status,
			&p.ClockIn,
			&loc.ID,
			&loc.Latitude,
			&loc.Longitude,
			&loc.Accuracy,
			&loc.Heading,
			&loc.Speed,
			&loc.BatteryLevel,
			&loc.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		if p.Status, err = models.ParseShiftStatus(status); err != nil {
			return nil, err
		}
		p.Location = loc.toModel(p.EmployeeID, p.ShiftID)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// nullableLocation receives the LEFT JOIN side of LivePositions.
type nullableLocation struct {
	ID           *uuid.UUID
	Latitude     *float64
	Longitude    *float64
	Accuracy     *float64
	Heading      *float64
	Speed        *float64
	BatteryLevel *int
	RecordedAt   *time.Time
}

func (n nullableLocation) toModel(employeeID, shiftID uuid.UUID) *models.Location {
	if n.ID == nil || n.Latitude == nil || n.Longitude == nil {
		return nil
	}
	loc := &models.Location{
		ID:          *n.ID,
		EmployeeID:  employeeID,
		TimeEntryID: shiftID,
		Latitude:    *n.Latitude,
		Longitude:   *n.Longitude,
		Heading:     n.Heading,
		Speed:       n.Speed,
	}
	if n.Accuracy != nil {
		loc.Accuracy = *n.Accuracy
	}
	if n.BatteryLevel != nil {
		loc.BatteryLevel = *n.BatteryLevel
	}
	if n.RecordedAt != nil {
		loc.RecordedAt = *n.RecordedAt
	}
	return loc
}
