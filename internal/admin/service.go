// Package admin implements the administrator views: employee and admin
// lists, attendance history, live positions and account management.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"timeclock/internal/auth"
	"timeclock/internal/db"
	"timeclock/internal/db/models"

	"github.com/google/uuid"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrEmployeeNotFound = errors.New("employee not found")
)

type Backend interface {
	GetEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	ListEmployees(ctx context.Context, admins bool) ([]*models.Employee, error)
	EmployeesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Employee, error)
	AllTimeEntries(ctx context.Context) ([]*models.HistoryEntry, error)
	LivePositions(ctx context.Context) ([]*models.LivePosition, error)
	UpdateEmployeePIN(ctx context.Context, id uuid.UUID, pin string) error
	SetAdminVerified(ctx context.Context, id uuid.UUID, verified bool) error
	DeleteEmployee(ctx context.Context, id uuid.UUID) error
	RegistrationsEnabled(ctx context.Context) (bool, error)
	SetRegistrationsEnabled(ctx context.Context, enabled bool) error
}

// PresenceView is the synced set of online employees.
type PresenceView interface {
	Online() []uuid.UUID
}

type Service struct {
	backend     Backend
	presence    PresenceView
	policy      auth.PINPolicy
	masterEmail string
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(backend Backend, presence PresenceView, policy auth.PINPolicy, masterEmail string, logger *slog.Logger) *Service {
	return &Service{
		backend:     backend,
		presence:    presence,
		policy:      policy,
		masterEmail: strings.TrimSpace(masterEmail),
		logger:      logger,
		now:         time.Now,
	}
}

// IsMaster reports whether the admin is the configured master admin.
func (s *Service) IsMaster(actor *models.Employee) bool {
	return actor != nil && actor.IsAdmin && s.masterEmail != "" &&
		strings.EqualFold(strings.TrimSpace(actor.Email), s.masterEmail)
}

// owns reports whether e registered with actor's invite code.
func owns(actor, e *models.Employee) bool {
	return e.AdminID != nil && *e.AdminID == actor.ID
}

// seesAll reports whether actor is unrestricted by roster. A nil actor is
// the service itself: the live poller and the Discord console.
func (s *Service) seesAll(actor *models.Employee) bool {
	return actor == nil || s.IsMaster(actor)
}

// canManage reports whether actor may change target's account.
func (s *Service) canManage(actor, target *models.Employee) bool {
	if s.IsMaster(actor) || target.ID == actor.ID {
		return true
	}
	return !target.IsAdmin && owns(actor, target)
}

// roster resolves which of ids belong to actor's roster, including the
// actor. all is set when actor sees every roster.
func (s *Service) roster(ctx context.Context, actor *models.Employee, ids []uuid.UUID) (allowed map[uuid.UUID]bool, all bool, err error) {
	if s.seesAll(actor) {
		return nil, true, nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	employees, err := s.backend.EmployeesByIDs(ctx, unique)
	if err != nil {
		return nil, false, fmt.Errorf("resolve roster: %w", err)
	}
	allowed = make(map[uuid.UUID]bool, len(employees))
	for _, e := range employees {
		if e.ID == actor.ID || owns(actor, e) {
			allowed[e.ID] = true
		}
	}
	return allowed, false, nil
}

// Employees lists regular employees; admins other than the master only see
// their own roster.
func (s *Service) Employees(ctx context.Context, actor *models.Employee, q EmployeeQuery) (PageResult[*models.Employee], error) {
	list, err := s.backend.ListEmployees(ctx, false)
	if err != nil {
		return PageResult[*models.Employee]{}, fmt.Errorf("list employees: %w", err)
	}
	if !s.seesAll(actor) {
		mine := make([]*models.Employee, 0, len(list))
		for _, e := range list {
			if owns(actor, e) {
				mine = append(mine, e)
			}
		}
		list = mine
	}
	return FilterEmployees(list, q)
}

// Admins lists every admin account. Verification stays master-only.
func (s *Service) Admins(ctx context.Context, actor *models.Employee, q EmployeeQuery) (PageResult[*models.Employee], error) {
	list, err := s.backend.ListEmployees(ctx, true)
	if err != nil {
		return PageResult[*models.Employee]{}, fmt.Errorf("list admins: %w", err)
	}
	return FilterEmployees(list, q)
}

func (s *Service) History(ctx context.Context, actor *models.Employee, q HistoryQuery) (PageResult[*models.HistoryEntry], error) {
	list, err := s.history(ctx, actor)
	if err != nil {
		return PageResult[*models.HistoryEntry]{}, err
	}
	return FilterHistory(list, q, s.now())
}

// HistoryForExport returns every matching entry, sorted by clock-in.
func (s *Service) HistoryForExport(ctx context.Context, actor *models.Employee, q HistoryQuery) ([]*models.HistoryEntry, error) {
	list, err := s.history(ctx, actor)
	if err != nil {
		return nil, err
	}
	entries := SelectHistory(list, q)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ClockIn.Before(entries[j].ClockIn)
	})
	return entries, nil
}

func (s *Service) history(ctx context.Context, actor *models.Employee) ([]*models.HistoryEntry, error) {
	list, err := s.backend.AllTimeEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	ids := make([]uuid.UUID, len(list))
	for i, h := range list {
		ids[i] = h.EmployeeID
	}
	allowed, all, err := s.roster(ctx, actor, ids)
	if err != nil || all {
		return list, err
	}
	mine := make([]*models.HistoryEntry, 0, len(list))
	for _, h := range list {
		if allowed[h.EmployeeID] {
			mine = append(mine, h)
		}
	}
	return mine, nil
}

// Live returns the latest position of every open shift visible to actor,
// flagged with the employee's presence, online employees first.
func (s *Service) Live(ctx context.Context, actor *models.Employee) ([]*models.LivePosition, error) {
	positions, err := s.backend.LivePositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load live positions: %w", err)
	}
	positions, err = s.VisiblePositions(ctx, actor, positions)
	if err != nil {
		return nil, err
	}
	return MergePresence(positions, s.online()), nil
}

// VisiblePositions drops positions outside actor's roster. The input slice
// is not modified.
func (s *Service) VisiblePositions(ctx context.Context, actor *models.Employee, positions []*models.LivePosition) ([]*models.LivePosition, error) {
	ids := make([]uuid.UUID, len(positions))
	for i, p := range positions {
		ids[i] = p.EmployeeID
	}
	allowed, all, err := s.roster(ctx, actor, ids)
	if err != nil || all {
		return positions, err
	}
	mine := make([]*models.LivePosition, 0, len(positions))
	for _, p := range positions {
		if allowed[p.EmployeeID] {
			mine = append(mine, p)
		}
	}
	return mine, nil
}

func (s *Service) online() map[uuid.UUID]bool {
	online := make(map[uuid.UUID]bool)
	if s.presence == nil {
		return online
	}
	for _, id := range s.presence.Online() {
		online[id] = true
	}
	return online
}

// MergePresence sets Online on each position and orders online employees
// first, then by name.
func MergePresence(positions []*models.LivePosition, online map[uuid.UUID]bool) []*models.LivePosition {
	for _, p := range positions {
		p.Online = online[p.EmployeeID]
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].Online != positions[j].Online {
			return positions[i].Online
		}
		return strings.ToLower(positions[i].EmployeeName) < strings.ToLower(positions[j].EmployeeName)
	})
	return positions
}

// Employee loads one account; ErrEmployeeNotFound when it does not exist.
func (s *Service) Employee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	e, err := s.backend.GetEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	if e == nil {
		return nil, ErrEmployeeNotFound
	}
	return e, nil
}

func notFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrEmployeeNotFound
	}
	return err
}

// VerifyAdmin sets the verified flag of another admin. Only the master
// admin may do this.
func (s *Service) VerifyAdmin(ctx context.Context, actor *models.Employee, id uuid.UUID, verified bool) error {
	if !s.IsMaster(actor) {
		return ErrForbidden
	}
	if actor.ID == id {
		return fmt.Errorf("%w: cannot change your own verification", ErrForbidden)
	}

	target, err := s.Employee(ctx, id)
	if err != nil {
		return err
	}
	if !target.IsAdmin {
		return fmt.Errorf("%w: %s is not an admin", ErrEmployeeNotFound, id)
	}
	if err := s.backend.SetAdminVerified(ctx, id, verified); err != nil {
		return notFound(err)
	}
	s.logger.Info("admin verification changed", "actor", actor.ID, "admin", id, "verified", verified)
	return nil
}

// ResetPIN replaces an account's PIN. The PIN must match the account type.
// Only the master admin may reset another admin's PIN; other admins may
// reset their own and their roster's.
func (s *Service) ResetPIN(ctx context.Context, actor *models.Employee, id uuid.UUID, pin string) error {
	pin = strings.TrimSpace(pin)
	if err := s.policy.Validate(pin); err != nil {
		return err
	}

	target, err := s.Employee(ctx, id)
	if err != nil {
		return err
	}
	if target.IsAdmin != auth.IsAdminPIN(pin) {
		return fmt.Errorf("%w: PIN type does not match the account", auth.ErrInvalidPINFormat)
	}
	if !s.canManage(actor, target) {
		return ErrForbidden
	}

	if err := s.backend.UpdateEmployeePIN(ctx, id, pin); err != nil {
		return notFound(err)
	}
	s.logger.Info("PIN reset", "actor", actor.ID, "employee", id)
	return nil
}

// DeleteEmployee removes an account. Admins cannot delete themselves, only
// the master admin may delete other admins, and other admins are limited
// to their own roster.
func (s *Service) DeleteEmployee(ctx context.Context, actor *models.Employee, id uuid.UUID) error {
	if actor.ID == id {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}
	target, err := s.Employee(ctx, id)
	if err != nil {
		return err
	}
	if !s.canManage(actor, target) {
		return ErrForbidden
	}
	if err := s.backend.DeleteEmployee(ctx, id); err != nil {
		return notFound(err)
	}
	s.logger.Info("employee deleted", "actor", actor.ID, "employee", id)
	return nil
}

func (s *Service) RegistrationsEnabled(ctx context.Context) (bool, error) {
	return s.backend.RegistrationsEnabled(ctx)
}

// SetRegistrationsEnabled toggles self-registration. by names who asked,
// for the log.
func (s *Service) SetRegistrationsEnabled(ctx context.Context, by string, enabled bool) error {
	if err := s.backend.SetRegistrationsEnabled(ctx, enabled); err != nil {
		return err
	}
	s.logger.Info("registrations toggled", "by", by, "enabled", enabled)
	return nil
}
