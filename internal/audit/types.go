package audit

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("audit storage disabled")

// Config configures the audit store.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one membership or moderation event.
// Keep it compact and schema-stable.
type Entry struct {
	At       time.Time `json:"at"`
	Action   string    `json:"action"` // role_gained, role_lost, member_joined, member_left, grant, ban, broadcast
	UserID   string    `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	ActorID  string    `json:"actor_id,omitempty"`
	RoleID   string    `json:"role_id,omitempty"`
	RoleName string    `json:"role_name,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}
