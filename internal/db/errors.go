package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrActiveShiftExists is returned by ClockIn when the employee already
	// has an open shift.
	ErrActiveShiftExists = errors.New("employee already has an active shift")
	// ErrNoActiveShift is returned by ClockOut when there is no open shift.
	ErrNoActiveShift = errors.New("no active shift found")
	// ErrNotFound is returned when a targeted row does not exist.
	ErrNotFound = errors.New("not found")
)

// SQLSTATE codes raised by the backend functions. Older deployments raise
// plain exceptions, so message matching stays as a fallback.
const (
	CodeActiveShiftExists = "TC001"
	CodeNoActiveShift     = "TC002"
)

var messageFallbacks = []struct {
	fragment string
	err      error
}{
	{"already has an active shift", ErrActiveShiftExists},
	{"no active shift found", ErrNoActiveShift},
}

// classify maps backend conflict errors onto the package sentinels. The
// original error stays in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case CodeActiveShiftExists:
			return fmt.Errorf("%w: %w", ErrActiveShiftExists, err)
		case CodeNoActiveShift:
			return fmt.Errorf("%w: %w", ErrNoActiveShift, err)
		}
		msg = pgErr.Message
	}

	lower := strings.ToLower(msg)
	for _, fb := range messageFallbacks {
		if strings.Contains(lower, fb.fragment) {
			return fmt.Errorf("%w: %w", fb.err, err)
		}
	}
	return err
}
