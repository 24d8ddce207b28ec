package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Employee struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	Email      string     `db:"email" json:"email"`
	AvatarURL  string     `db:"avatar_url" json:"avatar_url,omitempty"`
	IsAdmin    bool       `db:"is_admin" json:"is_admin"`
	Verified   bool       `db:"verified" json:"verified"`
	InviteCode string     `db:"invite_code" json:"invite_code,omitempty"`
	AdminID    *uuid.UUID `db:"admin_id" json:"admin_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// FullName joins first and last name, skipping blanks.
func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Registration is the input of register_employee_with_code.
type Registration struct {
	FirstName  string
	LastName   string
	PIN        string
	Email      string
	AvatarURL  string
	InviteCode string
	Verified   bool
}

// RegisteredEmployee is returned by registration; AdminEmail is the roster
// owner to notify, when the backend knows one.
type RegisteredEmployee struct {
	Employee
	AdminEmail *string `json:"admin_email,omitempty"`
}
