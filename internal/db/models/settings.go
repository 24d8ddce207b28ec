package models

import "time"

type SystemSettings struct {
	RegistrationsEnabled bool      `db:"registrations_enabled" json:"registrations_enabled"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
