// Package localstate persists client state that must survive restarts of
// the agent. Each named store keeps one JSON document in a SQLite table, so
// stores are independent of each other.
package localstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Names of the stores used by the agent.
const (
	AuthStoreName  = "auth-storage"
	ShiftStoreName = "time-storage"
)

// DB wraps the SQLite database connection and schema lifecycle.
type DB struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &DB{db: db}, nil
}

// Close releases the underlying database handle.
func (s *DB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the state table exists.
func (s *DB) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS persisted_state (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *DB) load(ctx context.Context, name string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM persisted_state WHERE name = ?;`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *DB) save(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO persisted_state (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		name,
		string(raw),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func (s *DB) clear(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM persisted_state WHERE name = ?;`, name); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}
	return nil
}

// Store is one named, independently persisted document.
type Store[T any] struct {
	db   *DB
	name string
}

func NewStore[T any](db *DB, name string) *Store[T] {
	return &Store[T]{db: db, name: name}
}

// Load returns the persisted value and whether one existed.
func (s *Store[T]) Load(ctx context.Context) (T, bool, error) {
	var v T
	ok, err := s.db.load(ctx, s.name, &v)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

func (s *Store[T]) Save(ctx context.Context, v T) error {
	return s.db.save(ctx, s.name, v)
}

func (s *Store[T]) Clear(ctx context.Context) error {
	return s.db.clear(ctx, s.name)
}
