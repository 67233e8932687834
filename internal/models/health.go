package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// HealthStatus is the aggregate status of the monitored system.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
)

func (s HealthStatus) Valid() bool {
	switch s {
	case StatusHealthy, StatusWarning, StatusCritical:
		return true
	}
	return false
}

// ErrInvalidPayload marks a snapshot, patch or alert that failed validation.
var ErrInvalidPayload = errors.New("invalid payload")

// MetricsSummary is the fixed set of gauges reported with every snapshot.
type MetricsSummary struct {
	CPUUsage             float64 `json:"cpu_usage"`
	MemoryUsage          float64 `json:"memory_usage"`
	DiskUsage            float64 `json:"disk_usage"`
	DatabaseResponseTime float64 `json:"database_response_time"`
	ActiveUsers          int     `json:"active_users"`
	DatabaseConnections  int     `json:"database_connections"`
}

// SystemHealth is the most recently known aggregate health snapshot.
type SystemHealth struct {
	OverallStatus    HealthStatus   `json:"overall_status"`
	TotalMetrics     int            `json:"total_metrics"`
	HealthyMetrics   int            `json:"healthy_metrics"`
	WarningMetrics   int            `json:"warning_metrics"`
	CriticalMetrics  int            `json:"critical_metrics"`
	UptimePercentage float64        `json:"uptime_percentage"`
	UptimeDuration   string         `json:"uptime_duration"`
	SystemStartTime  *time.Time     `json:"system_start_time,omitempty"`
	MetricsSummary   MetricsSummary `json:"metrics_summary"`
}

// Validate checks the snapshot invariants.
func (h SystemHealth) Validate() error {
	if !h.OverallStatus.Valid() {
		return fmt.Errorf("%w: overall_status %q", ErrInvalidPayload, h.OverallStatus)
	}
	if h.TotalMetrics < 0 || h.HealthyMetrics < 0 || h.WarningMetrics < 0 || h.CriticalMetrics < 0 {
		return fmt.Errorf("%w: negative metric count", ErrInvalidPayload)
	}
	if h.HealthyMetrics+h.WarningMetrics+h.CriticalMetrics != h.TotalMetrics {
		return fmt.Errorf("%w: metric counts %d+%d+%d do not sum to %d", ErrInvalidPayload,
			h.HealthyMetrics, h.WarningMetrics, h.CriticalMetrics, h.TotalMetrics)
	}
	if h.UptimePercentage < 0 || h.UptimePercentage > 100 {
		return fmt.Errorf("%w: uptime_percentage %.2f out of range", ErrInvalidPayload, h.UptimePercentage)
	}
	return nil
}

// healthWire mirrors SystemHealth with pointers so absent fields can be told
// apart from zero values.
type healthWire struct {
	OverallStatus    *HealthStatus   `json:"overall_status"`
	TotalMetrics     *int            `json:"total_metrics"`
	HealthyMetrics   *int            `json:"healthy_metrics"`
	WarningMetrics   *int            `json:"warning_metrics"`
	CriticalMetrics  *int            `json:"critical_metrics"`
	UptimePercentage *float64        `json:"uptime_percentage"`
	UptimeDuration   string          `json:"uptime_duration"`
	SystemStartTime  *time.Time      `json:"system_start_time"`
	MetricsSummary   *MetricsSummary `json:"metrics_summary"`
}

// ParseSystemHealth decodes a full snapshot and rejects it when any required
// field is missing or an invariant does not hold.
func ParseSystemHealth(raw []byte) (SystemHealth, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return SystemHealth{}, fmt.Errorf("%w: empty system health", ErrInvalidPayload)
	}
	var w healthWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return SystemHealth{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var missing []string
	if w.OverallStatus == nil {
		missing = append(missing, "overall_status")
	}
	if w.TotalMetrics == nil {
		missing = append(missing, "total_metrics")
	}
	if w.HealthyMetrics == nil {
		missing = append(missing, "healthy_metrics")
	}
	if w.WarningMetrics == nil {
		missing = append(missing, "warning_metrics")
	}
	if w.CriticalMetrics == nil {
		missing = append(missing, "critical_metrics")
	}
	if w.UptimePercentage == nil {
		missing = append(missing, "uptime_percentage")
	}
	if w.MetricsSummary == nil {
		missing = append(missing, "metrics_summary")
	}
	if len(missing) > 0 {
		return SystemHealth{}, fmt.Errorf("%w: missing %v", ErrInvalidPayload, missing)
	}

	h := SystemHealth{
		OverallStatus:    *w.OverallStatus,
		TotalMetrics:     *w.TotalMetrics,
		HealthyMetrics:   *w.HealthyMetrics,
		WarningMetrics:   *w.WarningMetrics,
		CriticalMetrics:  *w.CriticalMetrics,
		UptimePercentage: *w.UptimePercentage,
		UptimeDuration:   w.UptimeDuration,
		SystemStartTime:  w.SystemStartTime,
		MetricsSummary:   *w.MetricsSummary,
	}
	if err := h.Validate(); err != nil {
		return SystemHealth{}, err
	}
	return h, nil
}

// UptimeUpdate carries only the uptime subset of a snapshot.
type UptimeUpdate struct {
	UptimePercentage *float64   `json:"uptime_percentage,omitempty"`
	UptimeDuration   *string    `json:"uptime_duration,omitempty"`
	SystemStartTime  *time.Time `json:"system_start_time,omitempty"`
}

func ParseUptimeUpdate(raw []byte) (UptimeUpdate, error) {
	var u UptimeUpdate
	if len(raw) == 0 {
		return u, fmt.Errorf("%w: empty uptime update", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return u, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if u.UptimePercentage == nil && u.UptimeDuration == nil && u.SystemStartTime == nil {
		return u, fmt.Errorf("%w: uptime update carries no fields", ErrInvalidPayload)
	}
	if p := u.UptimePercentage; p != nil && (*p < 0 || *p > 100) {
		return u, fmt.Errorf("%w: uptime_percentage %.2f out of range", ErrInvalidPayload, *p)
	}
	return u, nil
}

// WithUptime returns a copy of h with only the uptime fields present in u
// replaced.
func (h SystemHealth) WithUptime(u UptimeUpdate) SystemHealth {
	if u.UptimePercentage != nil {
		h.UptimePercentage = *u.UptimePercentage
	}
	if u.UptimeDuration != nil {
		h.UptimeDuration = *u.UptimeDuration
	}
	if u.SystemStartTime != nil {
		t := *u.SystemStartTime
		h.SystemStartTime = &t
	}
	return h
}
