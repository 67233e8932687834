package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType discriminates push channel envelopes.
type MessageType string

const (
	MsgConnectionEstablished MessageType = "connection_established"
	MsgSLAUpdate             MessageType = "sla_update"
	MsgUptimeUpdate          MessageType = "uptime_update"
	MsgNewAlert              MessageType = "new_alert"
	// Outbound only.
	MsgRequestUpdate MessageType = "request_update"
)

// Envelope is the push channel frame.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SLAUpdate is a full snapshot push: health, alerts and connection metadata.
type SLAUpdate struct {
	SystemHealth SystemHealth   `json:"system_health"`
	Alerts       []Alert        `json:"alerts"`
	Connection   ConnectionMeta `json:"connection_info"`
}

type slaUpdateWire struct {
	SystemHealth json.RawMessage `json:"system_health"`
	Alerts       json.RawMessage `json:"alerts"`
	Connection   *ConnectionMeta `json:"connection_info"`
}

// ParseSLAUpdate validates the full snapshot. A bad snapshot fails the whole
// update; individual malformed alerts are dropped and counted.
func ParseSLAUpdate(raw []byte) (SLAUpdate, int, error) {
	if len(raw) == 0 {
		return SLAUpdate{}, 0, fmt.Errorf("%w: sla_update without data", ErrInvalidPayload)
	}
	var w slaUpdateWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return SLAUpdate{}, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	health, err := ParseSystemHealth(w.SystemHealth)
	if err != nil {
		return SLAUpdate{}, 0, err
	}
	alerts, dropped, err := ParseAlerts(w.Alerts)
	if err != nil {
		return SLAUpdate{}, 0, err
	}
	u := SLAUpdate{SystemHealth: health, Alerts: alerts}
	if w.Connection != nil {
		u.Connection = *w.Connection
	}
	return u, dropped, nil
}

// PollResult is what the REST fallback returns for one fetch.
type PollResult struct {
	Health SystemHealth
	Alerts []Alert
}

// AckResult is the server confirmation of an acknowledgement.
type AckResult struct {
	AlertID        string    `json:"alert_id"`
	AcknowledgedBy string    `json:"acknowledged_by"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}
