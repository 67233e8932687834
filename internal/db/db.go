package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Migrate creates the tables the monitor owns.
func (d *DB) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key       TEXT PRIMARY KEY,
		payload   JSONB NOT NULL,
		cached_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := d.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate cache_entries: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	d.Pool.Close()
	return nil
}
