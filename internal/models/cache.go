package models

import "time"

// CacheEntry is the persisted envelope of the last known view.
type CacheEntry struct {
	SystemHealth   *SystemHealth  `json:"system_health"`
	Alerts         []Alert        `json:"alerts"`
	ConnectionInfo ConnectionInfo `json:"connection_info"`
	LastUpdatedAt  time.Time      `json:"last_updated_at"`
	CacheTimestamp time.Time      `json:"cache_timestamp"`
}
