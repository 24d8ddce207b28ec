// Package shift implements the employee shift state machine:
// idle → active → break → active → idle.
//
// Every transition is confirmed by the backend before local state changes.
// Two backend conflicts are treated as reconciliation signals instead of
// failures: clocking in while the backend already has an open shift, and
// clocking out when the backend has none.
package shift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timeclock/internal/db"
	"timeclock/internal/db/models"
	"timeclock/internal/geo"

	"github.com/google/uuid"
)

var (
	ErrNotAuthenticated  = errors.New("no authenticated employee")
	ErrNoShift           = errors.New("no current shift")
	ErrInvalidTransition = errors.New("invalid shift transition")
)

// Backend is the subset of the remote API the store drives.
type Backend interface {
	ClockIn(ctx context.Context, employeeID uuid.UUID, loc *models.GeoLocation) (uuid.UUID, error)
	ClockOut(ctx context.Context, employeeID uuid.UUID, loc *models.GeoLocation, notes *string) error
	OpenShift(ctx context.Context, employeeID uuid.UUID) (*models.Shift, error)
	OpenBreak(ctx context.Context, shiftID uuid.UUID) (*models.Break, error)
	SetShiftStatus(ctx context.Context, shiftID uuid.UUID, status models.ShiftStatus) error
	StartBreak(ctx context.Context, shiftID uuid.UUID, start time.Time, reason string) (uuid.UUID, error)
	EndBreak(ctx context.Context, breakID uuid.UUID, end time.Time) error
	EndOpenBreak(ctx context.Context, shiftID uuid.UUID, end time.Time) error
}

// Persister keeps State across restarts.
type Persister interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, st State) error
}

// State is the locally cached view of the employee's shift. A zero ShiftID
// while active means the backend reported an open shift the store has not
// identified yet.
type State struct {
	Status       models.ShiftStatus `json:"status"`
	ShiftID      uuid.UUID          `json:"shift_id"`
	BreakID      uuid.UUID          `json:"break_id"`
	StartedAt    time.Time          `json:"started_at"`
	LastLocation *geo.Coordinate    `json:"last_location,omitempty"`
}

// Observer is called synchronously after every transition.
type Observer func(State)

type Store struct {
	backend Backend
	persist Persister
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     State
	observers []Observer
}

func New(backend Backend, persist Persister, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		persist: persist,
		logger:  logger,
		now:     time.Now,
		state:   State{Status: models.StatusIdle},
	}
}

// Restore loads the persisted state, if any, without notifying observers.
func (s *Store) Restore(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	st, ok, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore shift state: %w", err)
	}
	if !ok {
		return nil
	}
	if st.Status == "" {
		st.Status = models.StatusIdle
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Subscribe(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// LastLocation returns the most recent cached fix.
func (s *Store) LastLocation() *geo.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastLocation == nil {
		return nil
	}
	c := *s.state.LastLocation
	return &c
}

// SetLastLocation caches a fix. It is not a transition, so observers are
// not notified.
func (s *Store) SetLastLocation(ctx context.Context, c geo.Coordinate) {
	s.mu.Lock()
	s.state.LastLocation = &c
	st := s.state
	s.mu.Unlock()

	s.save(ctx, st)
}

// commit applies mutate under the lock, persists the result and notifies
// observers outside the lock.
func (s *Store) commit(ctx context.Context, mutate func(st *State)) State {
	s.mu.Lock()
	mutate(&s.state)
	st := s.state
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	s.save(ctx, st)
	for _, fn := range observers {
		fn(st)
	}
	return st
}

func (s *Store) save(ctx context.Context, st State) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(ctx, st); err != nil {
		s.logger.Error("failed to persist shift state", "error", err)
	}
}

func geoLocation(c *geo.Coordinate) *models.GeoLocation {
	if c == nil {
		return nil
	}
	return &models.GeoLocation{Latitude: c.Latitude, Longitude: c.Longitude, Accuracy: c.Accuracy}
}

// ClockIn opens a shift for the employee using the last known location.
func (s *Store) ClockIn(ctx context.Context, employeeID uuid.UUID) error {
	if employeeID == uuid.Nil {
		return ErrNotAuthenticated
	}

	loc := geoLocation(s.LastLocation())
	shiftID, err := s.backend.ClockIn(ctx, employeeID, loc)
	switch {
	case errors.Is(err, db.ErrActiveShiftExists):
		s.logger.Warn("backend already has an active shift, adopting it", "employee", employeeID)
		s.commit(ctx, func(st *State) {
			st.Status = models.StatusActive
			st.ShiftID = uuid.Nil
			st.BreakID = uuid.Nil
			st.StartedAt = time.Time{}
		})
		return nil
	case err != nil:
		return fmt.Errorf("clock in: %w", err)
	}

	startedAt := s.now()
	s.commit(ctx, func(st *State) {
		st.Status = models.StatusActive
		st.ShiftID = shiftID
		st.BreakID = uuid.Nil
		st.StartedAt = startedAt
	})
	s.logger.Info("clocked in", "employee", employeeID, "shift", shiftID)
	return nil
}

// ClockOut closes the employee's open shift.
func (s *Store) ClockOut(ctx context.Context, employeeID uuid.UUID, notes string) error {
	if employeeID == uuid.Nil {
		return ErrNotAuthenticated
	}

	var notesArg *string
	if notes != "" {
		notesArg = &notes
	}

	err := s.backend.ClockOut(ctx, employeeID, geoLocation(s.LastLocation()), notesArg)
	switch {
	case errors.Is(err, db.ErrNoActiveShift):
		s.logger.Warn("backend has no active shift, resetting local state", "employee", employeeID)
	case err != nil:
		return fmt.Errorf("clock out: %w", err)
	default:
		s.logger.Info("clocked out", "employee", employeeID)
	}

	s.commit(ctx, resetToIdle)
	return nil
}

func resetToIdle(st *State) {
	st.Status = models.StatusIdle
	st.ShiftID = uuid.Nil
	st.BreakID = uuid.Nil
	st.StartedAt = time.Time{}
}

// StartBreak records a break on the current shift.
func (s *Store) StartBreak(ctx context.Context, reason string) error {
	st := s.State()
	if st.ShiftID == uuid.Nil {
		return ErrNoShift
	}
	if st.Status != models.StatusActive {
		return fmt.Errorf("%w: cannot start a break while %s", ErrInvalidTransition, st.Status)
	}

	breakID, err := s.backend.StartBreak(ctx, st.ShiftID, s.now(), reason)
	if err != nil {
		return fmt.Errorf("start break: %w", err)
	}
	if err := s.backend.SetShiftStatus(ctx, st.ShiftID, models.StatusBreak); err != nil {
		return fmt.Errorf("start break: update shift status: %w", err)
	}

	s.commit(ctx, func(st *State) {
		st.Status = models.StatusBreak
		st.BreakID = breakID
	})
	s.logger.Info("break started", "shift", st.ShiftID, "break", breakID, "reason", reason)
	return nil
}

// EndBreak closes the current break. When the break id was lost, the open
// break of the shift is closed instead.
func (s *Store) EndBreak(ctx context.Context) error {
	st := s.State()
	if st.ShiftID == uuid.Nil {
		return ErrNoShift
	}
	if st.Status != models.StatusBreak {
		return fmt.Errorf("%w: no break in progress", ErrInvalidTransition)
	}

	end := s.now()
	if st.BreakID != uuid.Nil {
		if err := s.backend.EndBreak(ctx, st.BreakID, end); err != nil {
			return fmt.Errorf("end break: %w", err)
		}
	} else {
		if err := s.backend.EndOpenBreak(ctx, st.ShiftID, end); err != nil {
			return fmt.Errorf("end break: %w", err)
		}
	}
	if err := s.backend.SetShiftStatus(ctx, st.ShiftID, models.StatusActive); err != nil {
		return fmt.Errorf("end break: update shift status: %w", err)
	}

	s.commit(ctx, func(st *State) {
		st.Status = models.StatusActive
		st.BreakID = uuid.Nil
	})
	s.logger.Info("break ended", "shift", st.ShiftID)
	return nil
}

// Resync adopts the backend's open shift for the employee, or returns to
// idle when there is none.
func (s *Store) Resync(ctx context.Context, employeeID uuid.UUID) error {
	if employeeID == uuid.Nil {
		return ErrNotAuthenticated
	}

	open, err := s.backend.OpenShift(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	if open == nil {
		s.commit(ctx, resetToIdle)
		return nil
	}

	status := open.Status
	if status != models.StatusBreak {
		status = models.StatusActive
	}

	current := s.State()
	breakID := uuid.Nil
	if status == models.StatusBreak {
		if current.ShiftID == open.ID && current.BreakID != uuid.Nil {
			breakID = current.BreakID
		} else if b, err := s.backend.OpenBreak(ctx, open.ID); err != nil {
			// EndBreak falls back to the shift's open break
			s.logger.Warn("could not load open break", "shift", open.ID, "error", err)
		} else if b != nil {
			breakID = b.ID
		}
	}

	s.commit(ctx, func(st *State) {
		st.Status = status
		st.ShiftID = open.ID
		st.BreakID = breakID
		st.StartedAt = open.ClockIn
	})
	s.logger.Info("shift state resynced", "employee", employeeID, "shift", open.ID, "status", status)
	return nil
}

// Reset drops the local shift state, e.g. on logout. The backend is not
// touched; the next Resync restores an open shift.
func (s *Store) Reset(ctx context.Context) {
	s.commit(ctx, func(st *State) {
		resetToIdle(st)
		st.LastLocation = nil
	})
}
