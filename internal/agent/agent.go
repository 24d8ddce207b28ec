// Package agent is the employee-side client: it ties the session, the shift
// store, the location sampler, presence and the idle countdown together.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"timeclock/internal/auth"
	"timeclock/internal/db/models"
	"timeclock/internal/idle"
	"timeclock/internal/position"
	"timeclock/internal/shift"
	"timeclock/internal/tracker"

	"github.com/google/uuid"
)

var ErrNotLoggedIn = errors.New("not logged in")

// Presence is a joined presence channel.
type Presence interface {
	Online() []uuid.UUID
	Close()
}

// PresenceConnector joins the presence channel as the given employee.
type PresenceConnector func(employeeID uuid.UUID) (Presence, error)

type Deps struct {
	Session         *auth.Session
	Shifts          *shift.Store
	Sampler         *tracker.Sampler
	Marker          *tracker.Marker
	Source          position.Source
	ConnectPresence PresenceConnector
	IdleTimeout     time.Duration
	Out             io.Writer
	Logger          *slog.Logger
}

type Agent struct {
	session   *auth.Session
	shifts    *shift.Store
	sampler   *tracker.Sampler
	marker    *tracker.Marker
	source    position.Source
	connect   PresenceConnector
	countdown *idle.Countdown
	out       io.Writer
	logger    *slog.Logger

	mu       sync.Mutex
	presence Presence
}

func New(d Deps) *Agent {
	a := &Agent{
		session: d.Session,
		shifts:  d.Shifts,
		sampler: d.Sampler,
		marker:  d.Marker,
		source:  d.Source,
		connect: d.ConnectPresence,
		out:     d.Out,
		logger:  d.Logger,
	}
	if a.out == nil {
		a.out = io.Discard
	}
	a.countdown = idle.New(d.IdleTimeout, a.onIdleTick, a.onIdleExpire)
	a.shifts.Subscribe(a.onShiftChange)
	return a
}

// Start restores persisted state and, when a session survived, reconnects
// it and resyncs the shift with the backend.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		return err
	}
	if err := a.shifts.Restore(ctx); err != nil {
		return err
	}
	if a.session.EmployeeID() == uuid.Nil {
		return nil
	}
	a.logger.Info("restored session", "employee", a.session.EmployeeID())
	a.afterLogin(ctx)
	return nil
}

func (a *Agent) Close() {
	a.countdown.Stop()
	a.sampler.Close()
	a.closePresence()
}

// onShiftChange runs synchronously after every shift transition.
func (a *Agent) onShiftChange(st shift.State) {
	employeeID := a.session.EmployeeID()
	a.sampler.Update(tracker.Snapshot{
		EmployeeID: employeeID,
		ShiftID:    st.ShiftID,
		Status:     st.Status,
	})
	if employeeID == uuid.Nil {
		a.countdown.Stop()
		return
	}
	a.countdown.Observe(st.Status)
}

func (a *Agent) onIdleTick(remaining int) {
	if remaining > 0 && (remaining <= 5 || remaining%5 == 0) {
		fmt.Fprintf(a.out, "auto logout in %ds\n", remaining)
	}
}

func (a *Agent) onIdleExpire() {
	a.logger.Info("idle timeout reached, logging out", "employee", a.session.EmployeeID())
	if err := a.Logout(context.Background()); err != nil {
		a.logger.Error("auto logout failed", "error", err)
		return
	}
	fmt.Fprintln(a.out, "logged out after inactivity")
}

func (a *Agent) afterLogin(ctx context.Context) {
	employeeID := a.session.EmployeeID()

	if a.connect != nil {
		p, err := a.connect(employeeID)
		if err != nil {
			a.logger.Warn("presence unavailable", "error", err)
		} else {
			a.mu.Lock()
			a.presence = p
			a.mu.Unlock()
		}
	}

	if err := a.shifts.Resync(ctx, employeeID); err != nil {
		a.logger.Error("failed to resync shift", "employee", employeeID, "error", err)
		// observers still need the restored state
		a.onShiftChange(a.shifts.State())
	}
}

func (a *Agent) closePresence() {
	a.mu.Lock()
	p := a.presence
	a.presence = nil
	a.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

func (a *Agent) Login(ctx context.Context, pin string) (*models.Employee, error) {
	if a.session.EmployeeID() != uuid.Nil {
		if err := a.Logout(ctx); err != nil {
			return nil, err
		}
	}
	employee, err := a.session.Login(ctx, pin)
	if err != nil {
		return nil, err
	}
	a.logger.Info("logged in", "employee", employee.ID)
	a.afterLogin(ctx)
	return employee, nil
}

// Logout ends the session. The open shift, if any, stays open on the
// backend and is picked up again by the next login.
func (a *Agent) Logout(ctx context.Context) error {
	employeeID := a.session.EmployeeID()
	if employeeID == uuid.Nil {
		return ErrNotLoggedIn
	}
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.countdown.Stop()
	a.shifts.Reset(ctx)
	a.marker.Reset()
	a.closePresence()
	a.logger.Info("logged out", "employee", employeeID)
	return nil
}

func (a *Agent) Register(ctx context.Context, reg models.Registration) (*models.RegisteredEmployee, error) {
	return a.session.Register(ctx, reg)
}

// refreshLocation takes a one-shot fix for clock events, degrading to a
// coarse cached fix and finally to no location.
func (a *Agent) refreshLocation(ctx context.Context) {
	if a.source == nil {
		return
	}
	if c := position.CurrentOrFallback(ctx, a.source, a.logger); c != nil {
		a.shifts.SetLastLocation(ctx, *c)
	}
}

func (a *Agent) ClockIn(ctx context.Context) error {
	employeeID := a.session.EmployeeID()
	if employeeID == uuid.Nil {
		return ErrNotLoggedIn
	}
	a.refreshLocation(ctx)
	if err := a.shifts.ClockIn(ctx, employeeID); err != nil {
		return err
	}

	st := a.shifts.State()
	if st.Status == models.StatusActive && st.ShiftID == uuid.Nil {
		if err := a.shifts.Resync(ctx, employeeID); err != nil {
			a.logger.Warn("could not identify the adopted shift", "employee", employeeID, "error", err)
		}
	}
	return nil
}

func (a *Agent) ClockOut(ctx context.Context, notes string) error {
	employeeID := a.session.EmployeeID()
	if employeeID == uuid.Nil {
		return ErrNotLoggedIn
	}
	a.refreshLocation(ctx)
	return a.shifts.ClockOut(ctx, employeeID, notes)
}

func (a *Agent) StartBreak(ctx context.Context, reason string) error {
	if a.session.EmployeeID() == uuid.Nil {
		return ErrNotLoggedIn
	}
	return a.shifts.StartBreak(ctx, reason)
}

func (a *Agent) EndBreak(ctx context.Context) error {
	if a.session.EmployeeID() == uuid.Nil {
		return ErrNotLoggedIn
	}
	return a.shifts.EndBreak(ctx)
}

// Online returns the presence set, or nil without a presence channel.
func (a *Agent) Online() []uuid.UUID {
	a.mu.Lock()
	p := a.presence
	a.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Online()
}

func (a *Agent) IdleRemaining() int {
	return a.countdown.Remaining()
}
