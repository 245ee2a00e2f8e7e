// Package platform defines the guild client surface the bot consumes.
//
// Everything that talks to the chat platform goes through Client so the
// moderation core can be exercised against a fake in tests. IDs are the
// platform's decimal snowflake strings, passed around opaquely.
package platform

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a user, role, or channel lookup misses.
	ErrNotFound = errors.New("platform: not found")

	// ErrGuildUnavailable is returned while the guild is not resolvable,
	// typically during a gateway reconnect.
	ErrGuildUnavailable = errors.New("platform: guild unavailable")
)

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Member is a guild member snapshot. Roles holds role IDs.
type Member struct {
	ID          string
	Username    string
	DisplayName string
	Roles       []string
}

type Role struct {
	ID          string
	Name        string
	Mentionable bool
}

type Channel struct {
	ID   string
	Name string
}

// Message is an inbound chat message, already reduced to what the router
// needs. IsDirect is true for private messages to the bot.
type Message struct {
	ID             string
	ChannelID      string
	AuthorID       string
	AuthorUsername string
	Content        string
	IsDirect       bool
}

// Handlers receives gateway events. Nil handlers are skipped.
type Handlers struct {
	Ready         func()
	MessageCreate func(msg *Message)
	MemberJoin    func(m *Member)
	MemberLeave   func(m *Member)
	MemberUpdate  func(before, after *Member)
}

// Client is the collaborator surface consumed by the moderation core.
//
// Lookup methods return ErrNotFound for a miss and ErrGuildUnavailable
// while disconnected; both are expected conditions, not incidents.
type Client interface {
	// BotUserID identifies the bot's own account so it can ignore itself.
	BotUserID() string

	// Available reports whether the guild is currently resolvable.
	Available() bool

	Member(ctx context.Context, userID string) (*Member, error)
	Members(ctx context.Context) ([]*Member, error)
	Role(ctx context.Context, roleID string) (*Role, error)
	Roles(ctx context.Context) ([]*Role, error)
	Channels(ctx context.Context) ([]*Channel, error)

	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	SetRoleMentionable(ctx context.Context, roleID string, mentionable bool) error
	Ban(ctx context.Context, userID, reason string) error

	SendChannelMessage(ctx context.Context, channelID, text string) error
	SendDirectMessage(ctx context.Context, userID, text string) error
}

// HasRole reports whether the member carries the given role ID.
func HasRole(m *Member, roleID string) bool {
	if m == nil || roleID == "" {
		return false
	}
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}
