package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Alert represents one SLA violation event.
type Alert struct {
	ID             string     `json:"id"`
	Severity       Severity   `json:"severity"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	MetricType     string     `json:"metric_type"`
	CurrentValue   float64    `json:"current_value"`
	ThresholdValue float64    `json:"threshold_value"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	AcknowledgedBy *string    `json:"acknowledged_by"`
}

func (a Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: alert without id", ErrInvalidPayload)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("%w: alert %s severity %q", ErrInvalidPayload, a.ID, a.Severity)
	}
	if a.TriggeredAt.IsZero() {
		return fmt.Errorf("%w: alert %s without triggered_at", ErrInvalidPayload, a.ID)
	}
	if a.Acknowledged && (a.AcknowledgedAt == nil || a.AcknowledgedBy == nil) {
		return fmt.Errorf("%w: alert %s acknowledged without actor or time", ErrInvalidPayload, a.ID)
	}
	return nil
}

// Acknowledge returns a copy of a marked as acknowledged by actor at t.
// An already acknowledged alert is returned unchanged.
func (a Alert) Acknowledge(actor string, t time.Time) Alert {
	if a.Acknowledged {
		return a
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &t
	a.AcknowledgedBy = &actor
	return a
}

func ParseAlert(raw []byte) (Alert, error) {
	var a Alert
	if len(raw) == 0 {
		return a, fmt.Errorf("%w: empty alert", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return a, a.Validate()
}

// ParseAlerts decodes an alert list, dropping entries that fail validation.
// The second return value counts the dropped entries.
func ParseAlerts(raw []byte) ([]Alert, int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []Alert{}, 0, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	alerts := make([]Alert, 0, len(items))
	dropped := 0
	for _, item := range items {
		a, err := ParseAlert(item)
		if err != nil {
			dropped++
			continue
		}
		alerts = append(alerts, a)
	}
	return SortAlerts(alerts), dropped, nil
}

// SortAlerts orders alerts newest first by trigger time, in place.
func SortAlerts(alerts []Alert) []Alert {
	slices.SortStableFunc(alerts, func(a, b Alert) int {
		return b.TriggeredAt.Compare(a.TriggeredAt)
	})
	return alerts
}

// UpsertAlert inserts a, replacing any alert with the same id, and returns
// the re-sorted collection. A replacement never reverts an acknowledgement.
func UpsertAlert(alerts []Alert, a Alert) []Alert {
	out := make([]Alert, 0, len(alerts)+1)
	out = append(out, a)
	for _, existing := range alerts {
		if existing.ID != a.ID {
			out = append(out, existing)
			continue
		}
		if existing.Acknowledged && !a.Acknowledged {
			out[0].Acknowledged = true
			out[0].AcknowledgedAt = existing.AcknowledgedAt
			out[0].AcknowledgedBy = existing.AcknowledgedBy
		}
	}
	return SortAlerts(out)
}

// CloneAlerts copies the slice so callers can hand it out safely.
func CloneAlerts(alerts []Alert) []Alert {
	if alerts == nil {
		return []Alert{}
	}
	return slices.Clone(alerts)
}
