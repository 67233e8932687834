package cache

import (
	"context"
	"errors"
	"time"

	"sla-monitor/internal/db"
	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

// EntryRepository is the slice of *db.DB the Postgres backend needs.
type EntryRepository interface {
	GetCacheEntry(ctx context.Context, key string) ([]byte, error)
	UpsertCacheEntry(ctx context.Context, key string, payload []byte, cachedAt time.Time) error
}

// PostgresStore keeps the entry in the cache_entries table.
type PostgresStore struct {
	Freshness
	repo   EntryRepository
	key    string
	logger *logging.Logger
}

func NewPostgresStore(repo EntryRepository, key string, f Freshness, logger *logging.Logger) *PostgresStore {
	return &PostgresStore{Freshness: f, repo: repo, key: key, logger: logger}
}

func (s *PostgresStore) Read(ctx context.Context) *models.CacheEntry {
	raw, err := s.repo.GetCacheEntry(ctx, s.key)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Warnf("Cache read failed: %v", err)
		}
		return nil
	}
	entry, err := decode(raw)
	if err != nil {
		s.logger.Warnf("Discarding cached entry: %v", err)
		return nil
	}
	return entry
}

func (s *PostgresStore) Write(ctx context.Context, entry models.CacheEntry) {
	s.stamp(&entry)
	raw, err := encode(entry)
	if err != nil {
		s.logger.Warnf("Cache write skipped: %v", err)
		return
	}
	if err := s.repo.UpsertCacheEntry(ctx, s.key, raw, entry.CacheTimestamp); err != nil {
		s.logger.Warnf("Cache write failed: %v", err)
	}
}
