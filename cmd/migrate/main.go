package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"timeclock/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	dir := flag.String("dir", "migrations", "directory holding the *.sql migrations")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	if err := migrate(context.Background(), cfg.Database.ConnString(), *dir); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migration completed successfully", "dir", *dir)
}

// migrate applies every .sql file in dir in name order. The files are
// idempotent, so re-running is safe.
func migrate(ctx context.Context, connStr, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %s", dir)
	}
	sort.Strings(files)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer pool.Close()

	for _, file := range files {
		migration, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("error reading migration file: %w", err)
		}
		if _, err := pool.Exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("error executing %s: %w", filepath.Base(file), err)
		}
	}
	return nil
}
