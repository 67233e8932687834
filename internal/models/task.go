package models

import "time"

// TaskEvent names what a notification task reports.
type TaskEvent string

const (
	TaskNewAlert          TaskEvent = "new_alert"
	TaskAlertAcknowledged TaskEvent = "alert_acknowledged"
)

// Task is one queued alert notification.
type Task struct {
	RequestID string
	Event     TaskEvent
	Alert     Alert
	Timestamp time.Time
}
