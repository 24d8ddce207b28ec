package db

import (
	"context"
	"fmt"
	"time"

	"timeclock/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	*pgxpool.Pool
}

func New(config config.DatabaseConfig) (*DB, error) {
	// Create a configuration object
	cfg, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Configure connection pool and statement cache. The hosted backend sits
	// behind a transaction pooler, so prepared statements are off.
	cfg.MaxConns = config.MaxConns
	cfg.MinConns = 1
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}

	return &DB{pool}, nil
}
