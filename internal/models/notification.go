package models

import "time"

// AlertEvent is the record published for every notification task.
type AlertEvent struct {
	RequestID      string     `json:"request_id"`
	Event          TaskEvent  `json:"event"`
	Source         string     `json:"source,omitempty"`
	AlertID        string     `json:"alert_id"`
	Severity       Severity   `json:"severity"`
	Title          string     `json:"title,omitempty"`
	Message        string     `json:"message,omitempty"`
	MetricType     string     `json:"metric_type,omitempty"`
	CurrentValue   float64    `json:"current_value"`
	ThresholdValue float64    `json:"threshold_value"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	EmittedAt      time.Time  `json:"emitted_at"`
}

// NewAlertEvent flattens a task into its published form.
func NewAlertEvent(t Task, source string) AlertEvent {
	a := t.Alert
	return AlertEvent{
		RequestID:      t.RequestID,
		Event:          t.Event,
		Source:         source,
		AlertID:        a.ID,
		Severity:       a.Severity,
		Title:          a.Title,
		Message:        a.Message,
		MetricType:     a.MetricType,
		CurrentValue:   a.CurrentValue,
		ThresholdValue: a.ThresholdValue,
		TriggeredAt:    a.TriggeredAt,
		AcknowledgedBy: a.AcknowledgedBy,
		AcknowledgedAt: a.AcknowledgedAt,
		EmittedAt:      t.Timestamp,
	}
}
