package models

import "time"

// Session is one active login of the current tenant user.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Device       string    `json:"device"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Current      bool      `json:"current"`
}

// SessionGroup is a set of sessions sharing one grouping key (device).
type SessionGroup struct {
	Key      string    `json:"key"`
	Sessions []Session `json:"sessions"`
}

// ListingKind tells which shape a SessionListing holds. It follows the
// request, not the response body.
type ListingKind string

const (
	ListingFlat    ListingKind = "list"
	ListingGrouped ListingKind = "grouped"
)

// SessionListing is either a flat list or a grouped listing of sessions.
// Only the field matching Kind is populated.
type SessionListing struct {
	Kind     ListingKind    `json:"kind"`
	Total    int            `json:"total"`
	Sessions []Session      `json:"sessions,omitempty"`
	Groups   []SessionGroup `json:"grouped_sessions,omitempty"`
}
