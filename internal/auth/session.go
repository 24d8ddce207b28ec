package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"timeclock/internal/db/models"

	"github.com/google/uuid"
)

// Session is the logged-in identity of the agent, persisted across
// restarts.
type Session struct {
	auth    *Authenticator
	persist Persister

	mu      sync.Mutex
	current *Identity
}

func NewSession(auth *Authenticator, persist Persister) *Session {
	return &Session{auth: auth, persist: persist}
}

// Restore loads a persisted identity.
func (s *Session) Restore(ctx context.Context) error {
	id, ok, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok || id.Employee.ID == uuid.Nil {
		return nil
	}
	s.mu.Lock()
	s.current = &id
	s.mu.Unlock()
	return nil
}

func (s *Session) Login(ctx context.Context, pin string) (*models.Employee, error) {
	employee, err := s.auth.Authenticate(ctx, pin)
	if err != nil {
		return nil, err
	}

	id := Identity{Employee: *employee, LoggedInAt: time.Now().UTC()}
	if err := s.persist.Save(ctx, id); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.mu.Lock()
	s.current = &id
	s.mu.Unlock()
	return employee, nil
}

func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.persist.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Session) Register(ctx context.Context, reg models.Registration) (*models.RegisteredEmployee, error) {
	return s.auth.Register(ctx, reg)
}

// Employee returns a copy of the logged-in employee, or nil.
func (s *Session) Employee() *models.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	e := s.current.Employee
	return &e
}

// EmployeeID returns uuid.Nil when nobody is logged in.
func (s *Session) EmployeeID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return uuid.Nil
	}
	return s.current.Employee.ID
}
