package models

import "time"

// ConnectionState is the push transport status.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// CanTransition reports whether from→to is an allowed state change.
func CanTransition(from, to ConnectionState) bool {
	switch from {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateDisconnected
	case StateConnected:
		return to == StateDisconnected
	}
	return false
}

// ConnectionMeta is the server-side metadata sent with connection and
// snapshot messages.
type ConnectionMeta struct {
	ClientID          string `json:"client_id,omitempty"`
	ActiveConnections int    `json:"active_connections"`
	// Seconds between periodic server broadcasts.
	UpdateInterval int `json:"update_interval"`
}

// ConnectionInfo combines server metadata with the local connection state.
type ConnectionInfo struct {
	ConnectionMeta
	State             ConnectionState `json:"state"`
	LastConnectedAt   *time.Time      `json:"last_connected_at,omitempty"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
}
