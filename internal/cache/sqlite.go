package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

// SQLiteStore keeps the entry as one row of a local SQLite database.
type SQLiteStore struct {
	Freshness
	db     *sql.DB
	key    string
	logger *logging.Logger
}

func OpenSQLite(path, key string, f Freshness, logger *logging.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		cached_at DATETIME NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{Freshness: f, db: db, key: key, logger: logger}, nil
}

func (s *SQLiteStore) Read(ctx context.Context) *models.CacheEntry {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM cache_entries WHERE key = ?`, s.key).Scan(&payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warnf("Cache read failed: %v", err)
		}
		return nil
	}
	entry, err := decode([]byte(payload))
	if err != nil {
		s.logger.Warnf("Discarding cached entry: %v", err)
		return nil
	}
	return entry
}

func (s *SQLiteStore) Write(ctx context.Context, entry models.CacheEntry) {
	s.stamp(&entry)
	raw, err := encode(entry)
	if err != nil {
		s.logger.Warnf("Cache write skipped: %v", err)
		return
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO cache_entries (key, payload, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		s.key, string(raw), entry.CacheTimestamp.UTC())
	if err != nil {
		s.logger.Warnf("Cache write failed: %v", err)
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
