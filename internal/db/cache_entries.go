package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no row exists for the requested key.
var ErrNotFound = errors.New("not found")

// GetCacheEntry returns the raw JSON payload stored under key.
func (d *DB) GetCacheEntry(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	query := `SELECT payload FROM cache_entries WHERE key = $1`
	err := d.Pool.QueryRow(ctx, query, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return payload, nil
}

// UpsertCacheEntry replaces the payload stored under key.
func (d *DB) UpsertCacheEntry(ctx context.Context, key string, payload []byte, cachedAt time.Time) error {
	query := `
	INSERT INTO cache_entries (key, payload, cached_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at`
	if _, err := d.Pool.Exec(ctx, query, key, payload, cachedAt); err != nil {
		return fmt.Errorf("failed to upsert cache entry %s: %w", key, err)
	}
	return nil
}
