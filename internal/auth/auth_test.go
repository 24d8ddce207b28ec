package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"timeclock/internal/db/models"

	"github.com/google/uuid"
)

type fakeBackend struct {
	logins        int
	employees     map[string]*models.Employee
	registrations []models.Registration
	closed        bool
}

func (f *fakeBackend) LoginWithPIN(ctx context.Context, pin string) (*models.Employee, error) {
	f.logins++
	return f.employees[pin], nil
}

func (f *fakeBackend) RegisterEmployeeWithCode(ctx context.Context, reg models.Registration) (*models.RegisteredEmployee, error) {
	f.registrations = append(f.registrations, reg)
	return &models.RegisteredEmployee{Employee: models.Employee{
		ID:        uuid.New(),
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		IsAdmin:   IsAdminPIN(reg.PIN),
		Verified:  reg.Verified,
	}}, nil
}

func (f *fakeBackend) RegistrationsEnabled(ctx context.Context) (bool, error) {
	return !f.closed, nil
}

type fakeNotifier struct {
	sent []*models.RegisteredEmployee
	err  error
}

func (n *fakeNotifier) NotifyRegistration(ctx context.Context, reg *models.RegisteredEmployee) error {
	n.sent = append(n.sent, reg)
	return n.err
}

type memPersister struct {
	id    *Identity
	saves int
}

func (m *memPersister) Load(ctx context.Context) (Identity, bool, error) {
	if m.id == nil {
		return Identity{}, false, nil
	}
	return *m.id, true, nil
}

func (m *memPersister) Save(ctx context.Context, id Identity) error {
	m.saves++
	m.id = &id
	return nil
}

func (m *memPersister) Clear(ctx context.Context) error {
	m.id = nil
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPINPolicy(t *testing.T) {
	policy := PINPolicy{MasterAdminCode: "12345678"}

	tests := []struct {
		pin  string
		want error
	}{
		{"1234", nil},
		{"@12345", nil},
		{"12345678", nil},
		{"87654321", ErrInvalidPINFormat},
		{"123", ErrInvalidPINFormat},
		{"12345", ErrInvalidPINFormat},
		{"@1234", ErrInvalidPINFormat},
		{"@123456", ErrInvalidPINFormat},
		{"12a4", ErrInvalidPINFormat},
		{"", ErrInvalidPINFormat},
	}
	for _, tt := range tests {
		if err := policy.Validate(tt.pin); !errors.Is(err, tt.want) {
			t.Errorf("Validate(%q) = %v, want %v", tt.pin, err, tt.want)
		}
	}

	if err := (PINPolicy{}).Validate("12345678"); err == nil {
		t.Fatal("8-digit PIN must be rejected without a master code")
	}
}

func TestAuthenticate(t *testing.T) {
	admin := &models.Employee{ID: uuid.New(), IsAdmin: true}
	worker := &models.Employee{ID: uuid.New(), FirstName: "Ada"}
	backend := &fakeBackend{employees: map[string]*models.Employee{
		"1234":   worker,
		"@54321": admin,
	}}
	a := NewAuthenticator(backend, PINPolicy{}, nil, discard())
	ctx := context.Background()

	if _, err := a.Authenticate(ctx, "12"); !errors.Is(err, ErrInvalidPINFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if backend.logins != 0 {
		t.Fatal("malformed PIN must not reach the backend")
	}

	got, err := a.Authenticate(ctx, " 1234 ")
	if err != nil || got.ID != worker.ID {
		t.Fatalf("expected worker login, got %v %v", got, err)
	}

	if _, err := a.Authenticate(ctx, "9999"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	if _, err := a.Authenticate(ctx, "@54321"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("unverified admin should be rejected, got %v", err)
	}
	admin.Verified = true
	if _, err := a.Authenticate(ctx, "@54321"); err != nil {
		t.Fatalf("verified admin should log in: %v", err)
	}
}

func TestRegister(t *testing.T) {
	backend := &fakeBackend{}
	notifier := &fakeNotifier{err: errors.New("discord down")}
	a := NewAuthenticator(backend, PINPolicy{}, notifier, discard())
	ctx := context.Background()

	if _, err := a.Register(ctx, models.Registration{FirstName: "Ada", PIN: "1234"}); !errors.Is(err, ErrMissingName) {
		t.Fatalf("expected missing name error, got %v", err)
	}
	if _, err := a.Register(ctx, models.Registration{FirstName: "Ada", LastName: "L", PIN: "12"}); !errors.Is(err, ErrInvalidPINFormat) {
		t.Fatalf("expected format error, got %v", err)
	}

	reg, err := a.Register(ctx, models.Registration{FirstName: "Ada", LastName: "Lovelace", PIN: "1234", InviteCode: " ORG1 "})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.Verified || backend.registrations[0].InviteCode != "ORG1" {
		t.Fatalf("unexpected registration %+v", backend.registrations[0])
	}
	if len(notifier.sent) != 1 {
		t.Fatal("registration should notify even when the notifier fails")
	}

	adminReg, err := a.Register(ctx, models.Registration{FirstName: "Grace", LastName: "Hopper", PIN: "@12345"})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if adminReg.Verified {
		t.Fatal("admin registrations start unverified")
	}

	backend.closed = true
	if _, err := a.Register(ctx, models.Registration{FirstName: "A", LastName: "B", PIN: "4321"}); !errors.Is(err, ErrRegistrationsClosed) {
		t.Fatalf("expected closed registrations, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	worker := &models.Employee{ID: uuid.New(), FirstName: "Ada"}
	backend := &fakeBackend{employees: map[string]*models.Employee{"1234": worker}}
	persist := &memPersister{}
	ctx := context.Background()

	s := NewSession(NewAuthenticator(backend, PINPolicy{}, nil, discard()), persist)
	if s.EmployeeID() != uuid.Nil {
		t.Fatal("new session should be anonymous")
	}
	if _, err := s.Login(ctx, "1234"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.EmployeeID() != worker.ID || persist.saves != 1 {
		t.Fatal("login should set and persist the identity")
	}

	restored := NewSession(NewAuthenticator(backend, PINPolicy{}, nil, discard()), persist)
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Employee() == nil || restored.Employee().FirstName != "Ada" {
		t.Fatal("restored session should know the employee")
	}

	if err := restored.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if restored.EmployeeID() != uuid.Nil || persist.id != nil {
		t.Fatal("logout should clear memory and storage")
	}
}
