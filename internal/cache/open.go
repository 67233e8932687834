package cache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-redis/redis/v8"

	"sla-monitor/internal/config"
	"sla-monitor/internal/db"
	"sla-monitor/internal/logging"
)

// Open builds the backend named by cfg.Cache.Backend. The returned close
// func releases whatever connection the backend holds.
func Open(ctx context.Context, cfg config.Config, logger *logging.Logger) (Store, func() error, error) {
	f := Freshness{TTL: cfg.Sync.FreshnessTTL}
	logger = logger.Component("cache")
	noop := func() error { return nil }

	switch cfg.Cache.Backend {
	case "memory":
		return NewMemoryStore(f, logger), noop, nil
	case "file":
		s := NewFileStore(cfg.Cache.Dir, cfg.Cache.Key, f, logger)
		logger.Infof("Using file cache at %s", s.Path())
		return s, noop, nil
	case "sqlite":
		path := cfg.Cache.DSN
		if path == "" {
			path = filepath.Join(cfg.Cache.Dir, "cache.db")
		}
		s, err := OpenSQLite(path, cfg.Cache.Key, f, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Using sqlite cache at %s", path)
		return s, s.Close, nil
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("REDIS_ADDR is required for the redis cache backend")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Infof("Using redis cache at %s", cfg.Redis.Addr)
		s := NewRedisStore(client, cfg.Cache.Key, f, logger)
		return s, s.Close, nil
	case "postgres":
		if cfg.Cache.DSN == "" {
			return nil, nil, fmt.Errorf("CACHE_DSN is required for the postgres cache backend")
		}
		conn, err := db.New(ctx, cfg.Cache.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := conn.Migrate(ctx); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		logger.Infof("Using postgres cache")
		return NewPostgresStore(conn, cfg.Cache.Key, f, logger), conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
