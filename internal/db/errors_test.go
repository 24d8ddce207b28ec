package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	plain := errors.New("connection reset by peer")

	cases := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "coded active shift",
			in:   &pgconn.PgError{Code: CodeActiveShiftExists, Message: "shift conflict"},
			want: ErrActiveShiftExists,
		},
		{
			name: "coded no active shift",
			in:   &pgconn.PgError{Code: CodeNoActiveShift, Message: "nothing open"},
			want: ErrNoActiveShift,
		},
		{
			name: "raise exception message active shift",
			in:   &pgconn.PgError{Code: "P0001", Message: "Employee already has an active shift"},
			want: ErrActiveShiftExists,
		},
		{
			name: "raise exception message no active shift",
			in:   &pgconn.PgError{Code: "P0001", Message: "No active shift found"},
			want: ErrNoActiveShift,
		},
		{
			name: "wrapped transport error text",
			in:   fmt.Errorf("rpc: %w", errors.New("No active shift found for employee")),
			want: ErrNoActiveShift,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.in)
			if !errors.Is(got, tc.want) {
				t.Fatalf("classify(%v) = %v, want %v", tc.in, got, tc.want)
			}
			if !errors.Is(got, tc.in) {
				t.Fatalf("original error dropped from chain: %v", got)
			}
		})
	}

	if got := classify(plain); got != plain {
		t.Fatalf("unrelated error should pass through, got %v", got)
	}
	if classify(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}
