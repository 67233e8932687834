// Package cache persists the last known SLA view so a restart can show data
// before the network answers. Every backend is best-effort: reads degrade to
// a cold start and write failures are logged and dropped.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sla-monitor/internal/models"
)

// DefaultFreshness is the age below which a cached entry skips a fetch.
const DefaultFreshness = 5 * time.Minute

// Store is the persistent key-value home of the CacheEntry.
type Store interface {
	// Read returns nil when nothing usable is stored.
	Read(ctx context.Context) *models.CacheEntry
	// Write stamps CacheTimestamp and stores the entry, swallowing failures.
	Write(ctx context.Context, entry models.CacheEntry)
	IsFresh(entry *models.CacheEntry) bool
}

// Freshness implements the staleness policy shared by all backends.
type Freshness struct {
	TTL time.Duration
	Now func() time.Time
}

func (f Freshness) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f Freshness) ttl() time.Duration {
	if f.TTL <= 0 {
		return DefaultFreshness
	}
	return f.TTL
}

func (f Freshness) IsFresh(entry *models.CacheEntry) bool {
	if entry == nil || entry.CacheTimestamp.IsZero() {
		return false
	}
	return f.now().Sub(entry.CacheTimestamp) < f.ttl()
}

func (f Freshness) stamp(entry *models.CacheEntry) {
	entry.CacheTimestamp = f.now()
}

func encode(entry models.CacheEntry) ([]byte, error) {
	b, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return b, nil
}

// decode rejects entries whose snapshot or alerts would not pass the same
// validation as live data.
func decode(raw []byte) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	if entry.CacheTimestamp.IsZero() {
		return nil, fmt.Errorf("cache entry without timestamp")
	}
	if entry.SystemHealth != nil {
		if err := entry.SystemHealth.Validate(); err != nil {
			return nil, fmt.Errorf("cached snapshot: %w", err)
		}
	}
	valid := make([]models.Alert, 0, len(entry.Alerts))
	for _, a := range entry.Alerts {
		if a.Validate() == nil {
			valid = append(valid, a)
		}
	}
	entry.Alerts = models.SortAlerts(valid)
	return &entry, nil
}
