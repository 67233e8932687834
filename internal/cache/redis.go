package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"sla-monitor/internal/logging"
	"sla-monitor/internal/models"
)

// redisTTL bounds how long an abandoned entry lingers in a shared Redis.
const redisTTL = 24 * time.Hour

// RedisStore keeps the entry under one key of a Redis instance, which lets
// several monitor processes on different hosts share a warm cache.
type RedisStore struct {
	Freshness
	client *redis.Client
	key    string
	logger *logging.Logger
}

func NewRedisStore(client *redis.Client, key string, f Freshness, logger *logging.Logger) *RedisStore {
	return &RedisStore{Freshness: f, client: client, key: key, logger: logger}
}

func (s *RedisStore) Read(ctx context.Context) *models.CacheEntry {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
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

func (s *RedisStore) Write(ctx context.Context, entry models.CacheEntry) {
	s.stamp(&entry)
	raw, err := encode(entry)
	if err != nil {
		s.logger.Warnf("Cache write skipped: %v", err)
		return
	}
	if err := s.client.Set(ctx, s.key, raw, redisTTL).Err(); err != nil {
		s.logger.Warnf("Cache write failed: %v", err)
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
