package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"timeclock/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func locationArg(loc *models.GeoLocation) (any, error) {
	if loc == nil {
		return nil, nil
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("error encoding location: %w", err)
	}
	return string(b), nil
}

// ClockIn calls clock_in and returns the id of the new shift.
func (db *DB) ClockIn(ctx context.Context, employeeID uuid.UUID, loc *models.GeoLocation) (uuid.UUID, error) {
	locArg, err := locationArg(loc)
	if err != nil {
		return uuid.Nil, err
	}

	var shiftID uuid.UUID
	err = db.QueryRow(ctx, `SELECT clock_in($1, $2::jsonb)`, employeeID.String(), locArg).Scan(&shiftID)
	if err != nil {
		return uuid.Nil, classify(err)
	}
	return shiftID, nil
}

// ClockOut calls clock_out for the employee's open shift.
func (db *DB) ClockOut(ctx context.Context, employeeID uuid.UUID, loc *models.GeoLocation, notes *string) error {
	locArg, err := locationArg(loc)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `SELECT clock_out($1, $2::jsonb, $3)`, employeeID.String(), locArg, notes)
	return classify(err)
}

// OpenShift returns the newest shift without a clock-out time, or nil.
func (db *DB) OpenShift(ctx context.Context, employeeID uuid.UUID) (*models.Shift, error) {
	query := `
		SELECT id, employee_id, clock_in, clock_out, status, notes
		FROM time_entries
		WHERE employee_id = $1 AND clock_out IS NULL
		ORDER BY clock_in DESC
		LIMIT 1`

	shift := &models.Shift{}
	var status string
	err := db.QueryRow(ctx, query, employeeID.String()).Scan(
		&shift.ID,
		&shift.EmployeeID,
		&shift.ClockIn,
		&shift.ClockOut,
		&status,
		&shift.Notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting open shift: %w", err)
	}

	shift.Status, err = models.ParseShiftStatus(status)
	if err != nil {
		return nil, err
	}
	return shift, nil
}

// SetShiftStatus updates the status column of a shift.
func (db *DB) SetShiftStatus(ctx context.Context, shiftID uuid.UUID, status models.ShiftStatus) error {
	query := `
		UPDATE time_entries
		SET status = $1
		WHERE id = $2`

	return db.execOne(ctx, query, string(status), shiftID.String())
}

// StartBreak inserts a break row for the shift and returns its id.
func (db *DB) StartBreak(ctx context.Context, shiftID uuid.UUID, start time.Time, reason string) (uuid.UUID, error) {
	query := `
		INSERT INTO breaks (time_entry_id, start_time, reason)
		VALUES ($1, $2, $3)
		RETURNING id`

	var breakID uuid.UUID
	if err := db.QueryRow(ctx, query, shiftID.String(), start, reason).Scan(&breakID); err != nil {
		return uuid.Nil, fmt.Errorf("error creating break: %w", err)
	}
	return breakID, nil
}

// EndBreak closes the break with the given id.
func (db *DB) EndBreak(ctx context.Context, breakID uuid.UUID, end time.Time) error {
	query := `
		UPDATE breaks
		SET end_time = $1
		WHERE id = $2 AND end_time IS NULL`

	return db.execOne(ctx, query, end, breakID.String())
}

// EndOpenBreak closes whatever break of the shift is still open.
func (db *DB) EndOpenBreak(ctx context.Context, shiftID uuid.UUID, end time.Time) error {
	query := `
		UPDATE breaks
		SET end_time = $1
		WHERE time_entry_id = $2 AND end_time IS NULL`

	_, err := db.Exec(ctx, query, end, shiftID.String())
	return err
}

// OpenBreak returns the unfinished break of a shift, or nil.
func (db *DB) OpenBreak(ctx context.Context, shiftID uuid.UUID) (*models.Break, error) {
	query := `
		SELECT id, time_entry_id, start_time, end_time, coalesce(reason, '')
		FROM breaks
		WHERE time_entry_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC
		LIMIT 1`

	b := &models.Break{}
	err := db.QueryRow(ctx, query, shiftID.String()).Scan(
		&b.ID,
		&b.TimeEntryID,
		&b.StartTime,
		&b.EndTime,
		&b.Reason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting open break: %w", err)
	}
	return b, nil
}

// AllTimeEntries calls get_all_time_entries.
func (db *DB) AllTimeEntries(ctx context.Context) ([]*models.HistoryEntry, error) {
	query := `
		SELECT id, employee_id, coalesce(employee_name, ''), clock_in, clock_out,
			status, coalesce(break_seconds, 0)::bigint, notes
		FROM get_all_time_entries()`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error calling get_all_time_entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var (
			h            = &models.HistoryEntry{}
			status       string
			breakSeconds int64
		)
		err := rows.Scan(
			&h.ID,
			&h.EmployeeID,
			&h.EmployeeName,
			&h.ClockIn,
			&h.ClockOut,
			&status,
			&breakSeconds,
			&h.Notes,
		)
		if err != nil {
			return nil, err
		}
		if h.Status, err = models.ParseShiftStatus(status); err != nil {
			return nil, err
		}
		h.BreakTime = time.Duration(breakSeconds) * time.Second
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
