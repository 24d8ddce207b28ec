package db

import (
	"context"
	"errors"
	"fmt"

	"timeclock/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const employeeColumns = `id, first_name, last_name, coalesce(email, ''), coalesce(avatar_url, ''),
	is_admin, verified, coalesce(invite_code, ''), admin_id, created_at`

func scanEmployee(row pgx.Row, e *models.Employee, extra ...any) error {
	dest := []any{
		&e.ID,
		&e.FirstName,
		&e.LastName,
		&e.Email,
		&e.AvatarURL,
		&e.IsAdmin,
		&e.Verified,
		&e.InviteCode,
		&e.AdminID,
		&e.CreatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// LoginWithPIN calls login_with_pin and returns nil when no employee matches.
func (db *DB) LoginWithPIN(ctx context.Context, pin string) (*models.Employee, error) {
	query := `
		SELECT ` + employeeColumns + `
		FROM login_with_pin($1)
		WHERE id IS NOT NULL`

	employee := &models.Employee{}
	err := scanEmployee(db.QueryRow(ctx, query, pin), employee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error calling login_with_pin: %w", err)
	}
	return employee, nil
}

// RegisterEmployeeWithCode calls register_employee_with_code.
func (db *DB) RegisterEmployeeWithCode(ctx context.Context, reg models.Registration) (*models.RegisteredEmployee, error) {
	query := `
		SELECT ` + employeeColumns + `, admin_email
		FROM register_employee_with_code($1, $2, $3, $4, $5, $6, $7)`

	registered := &models.RegisteredEmployee{}
	err := scanEmployee(db.QueryRow(ctx, query,
		reg.FirstName,
		reg.LastName,
		reg.PIN,
		reg.Email,
		reg.AvatarURL,
		reg.InviteCode,
		reg.Verified,
	), &registered.Employee, &registered.AdminEmail)
	if err != nil {
		return nil, fmt.Errorf("error calling register_employee_with_code: %w", err)
	}
	return registered, nil
}

// GetEmployee retrieves an employee by ID
func (db *DB) GetEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	employee := &models.Employee{}
	err := scanEmployee(db.QueryRow(ctx, query, id.String()), employee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return employee, nil
}

// ListEmployees returns either the admins or the regular employees.
func (db *DB) ListEmployees(ctx context.Context, admins bool) ([]*models.Employee, error) {
	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE is_admin = $1
		ORDER BY created_at DESC`

	return db.queryEmployees(ctx, query, admins)
}

// EmployeesByIDs loads the employees whose ids are listed.
func (db *DB) EmployeesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	arr := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		arr = append(arr, id.String())
	}

	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE id = ANY($1::uuid[])`

	return db.queryEmployees(ctx, query, arr)
}

func (db *DB) queryEmployees(ctx context.Context, query string, args ...any) ([]*models.Employee, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []*models.Employee
	for rows.Next() {
		e := &models.Employee{}
		if err := scanEmployee(rows, e); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// UpdateEmployeePIN replaces an employee's PIN.
func (db *DB) UpdateEmployeePIN(ctx context.Context, id uuid.UUID, pin string) error {
	query := `
		UPDATE employees
		SET pin = $1
		WHERE id = $2`

	return db.execOne(ctx, query, pin, id.String())
}

// SetAdminVerified flips the verified flag of an admin account.
func (db *DB) SetAdminVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	query := `
		UPDATE employees
		SET verified = $1
		WHERE id = $2 AND is_admin`

	return db.execOne(ctx, query, verified, id.String())
}

// DeleteEmployee removes an employee row.
func (db *DB) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	return db.execOne(ctx, `DELETE FROM employees WHERE id = $1`, id.String())
}

func (db *DB) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
