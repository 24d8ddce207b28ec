// Package auth handles PIN login, registration and the persisted identity
// of the employee using the agent.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"timeclock/internal/db/models"
)

var (
	ErrInvalidPINFormat    = errors.New("invalid PIN format")
	ErrInvalidCredentials  = errors.New("invalid PIN")
	ErrNotVerified         = errors.New("admin account is not verified yet")
	ErrRegistrationsClosed = errors.New("registrations are disabled")
	ErrMissingName         = errors.New("first and last name are required")
)

var (
	employeePIN = regexp.MustCompile(`^\d{4}$`)
	adminPIN    = regexp.MustCompile(`^@\d{5}$`)
	legacyPIN   = regexp.MustCompile(`^\d{8}$`)
)

// PINPolicy validates PIN formats. MasterAdminCode is the one 8-digit code
// still accepted.
type PINPolicy struct {
	MasterAdminCode string
}

func (p PINPolicy) Validate(pin string) error {
	switch {
	case employeePIN.MatchString(pin), adminPIN.MatchString(pin):
		return nil
	case legacyPIN.MatchString(pin) && p.MasterAdminCode != "" && pin == p.MasterAdminCode:
		return nil
	}
	return ErrInvalidPINFormat
}

// IsAdminPIN reports whether pin uses the admin format.
func IsAdminPIN(pin string) bool {
	return adminPIN.MatchString(pin)
}

type Backend interface {
	LoginWithPIN(ctx context.Context, pin string) (*models.Employee, error)
	RegisterEmployeeWithCode(ctx context.Context, reg models.Registration) (*models.RegisteredEmployee, error)
	RegistrationsEnabled(ctx context.Context) (bool, error)
}

// Notifier is told about every successful registration.
type Notifier interface {
	NotifyRegistration(ctx context.Context, reg *models.RegisteredEmployee) error
}

// Authenticator performs stateless PIN checks against the backend.
type Authenticator struct {
	backend  Backend
	policy   PINPolicy
	notifier Notifier
	logger   *slog.Logger
}

func NewAuthenticator(backend Backend, policy PINPolicy, notifier Notifier, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		backend:  backend,
		policy:   policy,
		notifier: notifier,
		logger:   logger,
	}
}

// Authenticate validates the PIN format before calling login_with_pin.
func (a *Authenticator) Authenticate(ctx context.Context, pin string) (*models.Employee, error) {
	pin = strings.TrimSpace(pin)
	if err := a.policy.Validate(pin); err != nil {
		return nil, err
	}

	employee, err := a.backend.LoginWithPIN(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if employee == nil {
		return nil, ErrInvalidCredentials
	}
	if employee.IsAdmin && !employee.Verified {
		return nil, ErrNotVerified
	}
	return employee, nil
}

// Register creates an employee on the roster identified by the invite code.
// Admin registrations start unverified.
func (a *Authenticator) Register(ctx context.Context, reg models.Registration) (*models.RegisteredEmployee, error) {
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.InviteCode = strings.TrimSpace(reg.InviteCode)
	reg.PIN = strings.TrimSpace(reg.PIN)

	if reg.FirstName == "" || reg.LastName == "" {
		return nil, ErrMissingName
	}
	if err := a.policy.Validate(reg.PIN); err != nil {
		return nil, err
	}

	open, err := a.backend.RegistrationsEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if !open {
		return nil, ErrRegistrationsClosed
	}

	reg.Verified = !IsAdminPIN(reg.PIN)
	registered, err := a.backend.RegisterEmployeeWithCode(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	a.logger.Info("employee registered", "employee", registered.ID, "admin", registered.IsAdmin)

	if a.notifier != nil {
		if err := a.notifier.NotifyRegistration(ctx, registered); err != nil {
			a.logger.Warn("failed to send registration notification", "employee", registered.ID, "error", err)
		}
	}
	return registered, nil
}

// Identity is the persisted auth state.
type Identity struct {
	Employee   models.Employee `json:"employee"`
	LoggedInAt time.Time       `json:"logged_in_at"`
}

type Persister interface {
	Load(ctx context.Context) (Identity, bool, error)
	Save(ctx context.Context, id Identity) error
	Clear(ctx context.Context) error
}
