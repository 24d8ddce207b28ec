package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RegistrationsEnabled reads system_settings. A missing row means open
// registrations so the first admin can sign up.
func (db *DB) RegistrationsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := db.QueryRow(ctx, `SELECT registrations_enabled FROM system_settings LIMIT 1`).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading system settings: %w", err)
	}
	return enabled, nil
}

// SetRegistrationsEnabled updates the flag, creating the settings row when
// it does not exist yet.
func (db *DB) SetRegistrationsEnabled(ctx context.Context, enabled bool) error {
	tag, err := db.Exec(ctx, `
		UPDATE system_settings
		SET registrations_enabled = $1, updated_at = now()`, enabled)
	if err != nil {
		return fmt.Errorf("error updating system settings: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = db.Exec(ctx, `
		INSERT INTO system_settings (registrations_enabled, updated_at)
		VALUES ($1, now())`, enabled)
	if err != nil {
		return fmt.Errorf("error creating system settings: %w", err)
	}
	return nil
}
