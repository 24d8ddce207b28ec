package localstate

import (
	"context"
	"path/filepath"
	"testing"
)

type authDoc struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
}

type shiftDoc struct {
	Status  string `json:"status"`
	ShiftID string `json:"shift_id"`
}

func openTemp(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func TestStoresSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	db := openTemp(t, path)
	auth := NewStore[authDoc](db, AuthStoreName)
	shift := NewStore[shiftDoc](db, ShiftStoreName)

	if err := auth.Save(ctx, authDoc{EmployeeID: "e-1", Name: "Ada"}); err != nil {
		t.Fatalf("save auth: %v", err)
	}
	if err := shift.Save(ctx, shiftDoc{Status: "active", ShiftID: "s-1"}); err != nil {
		t.Fatalf("save shift: %v", err)
	}
	if err := shift.Save(ctx, shiftDoc{Status: "break", ShiftID: "s-1"}); err != nil {
		t.Fatalf("overwrite shift: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db = openTemp(t, path)
	defer db.Close()

	gotAuth, ok, err := NewStore[authDoc](db, AuthStoreName).Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load auth: ok=%v err=%v", ok, err)
	}
	if gotAuth.EmployeeID != "e-1" || gotAuth.Name != "Ada" {
		t.Fatalf("unexpected auth doc %+v", gotAuth)
	}

	gotShift, ok, err := NewStore[shiftDoc](db, ShiftStoreName).Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load shift: ok=%v err=%v", ok, err)
	}
	if gotShift.Status != "break" {
		t.Fatalf("expected latest shift doc, got %+v", gotShift)
	}
}

func TestClearIsPerStore(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t, filepath.Join(t.TempDir(), "state.db"))
	defer db.Close()

	auth := NewStore[authDoc](db, AuthStoreName)
	shift := NewStore[shiftDoc](db, ShiftStoreName)

	if err := auth.Save(ctx, authDoc{EmployeeID: "e-1"}); err != nil {
		t.Fatalf("save auth: %v", err)
	}
	if err := shift.Save(ctx, shiftDoc{Status: "active"}); err != nil {
		t.Fatalf("save shift: %v", err)
	}
	if err := auth.Clear(ctx); err != nil {
		t.Fatalf("clear auth: %v", err)
	}

	if _, ok, err := auth.Load(ctx); err != nil || ok {
		t.Fatalf("auth should be empty: ok=%v err=%v", ok, err)
	}
	if _, ok, err := shift.Load(ctx); err != nil || !ok {
		t.Fatalf("shift should remain: ok=%v err=%v", ok, err)
	}
}
