package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

// FileStore keeps the entry in a single JSON file named after the cache key.
type FileStore struct {
	Freshness
	path   string
	logger *logging.Logger
}

func NewFileStore(dir, key string, f Freshness, logger *logging.Logger) *FileStore {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key) + ".json"
	return &FileStore{Freshness: f, path: filepath.Join(dir, name), logger: logger}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Read(_ context.Context) *models.CacheEntry {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warnf("Cache read failed (%s): %v", s.path, err)
		}
		return nil
	}
	entry, err := decode(raw)
	if err != nil {
		s.logger.Warnf("Discarding cached entry %s: %v", s.path, err)
		return nil
	}
	return entry
}

func (s *FileStore) Write(_ context.Context, entry models.CacheEntry) {
	s.stamp(&entry)
	if err := s.write(entry); err != nil {
		s.logger.Warnf("Cache write skipped: %v", err)
	}
}

// write goes through a temp file and a rename so readers never see a
// half-written entry.
func (s *FileStore) write(entry models.CacheEntry) error {
	raw, err := encode(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cache-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}
