package cache

import (
	"context"
	"sync"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

// MemoryStore keeps the serialized entry in process memory.
type MemoryStore struct {
	Freshness
	mu     sync.Mutex
	data   []byte
	logger *logging.Logger
}

func NewMemoryStore(f Freshness, logger *logging.Logger) *MemoryStore {
	return &MemoryStore{Freshness: f, logger: logger}
}

func (s *MemoryStore) Read(_ context.Context) *models.CacheEntry {
	s.mu.Lock()
	raw := s.data
	s.mu.Unlock()
	if raw == nil {
		return nil
	}
	entry, err := decode(raw)
	if err != nil {
		s.logger.Warnf("Discarding cached entry: %v", err)
		return nil
	}
	return entry
}

func (s *MemoryStore) Write(_ context.Context, entry models.CacheEntry) {
	s.stamp(&entry)
	raw, err := encode(entry)
	if err != nil {
		s.logger.Warnf("Cache write skipped: %v", err)
		return
	}
	s.mu.Lock()
	s.data = raw
	s.mu.Unlock()
}

// Seed stores raw bytes as-is. Tests use it to plant corrupt entries.
func (s *MemoryStore) Seed(raw []byte) {
	s.mu.Lock()
	s.data = raw
	s.mu.Unlock()
}
