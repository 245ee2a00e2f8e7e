package platform

import (
	"context"
	"strings"
)

// Name lookups are case-insensitive everywhere in the bot, so they live
// here instead of being re-implemented at each call site.

// RoleByName resolves a role by case-insensitive name match.
func RoleByName(ctx context.Context, c Client, name string) (*Role, error) {
	roles, err := c.Roles(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	for _, r := range roles {
		if strings.ToLower(r.Name) == lower {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// ChannelByName resolves a text channel by case-insensitive name match.
func ChannelByName(ctx context.Context, c Client, name string) (*Channel, error) {
	channels, err := c.Channels(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	for _, ch := range channels {
		if strings.ToLower(ch.Name) == lower {
			return ch, nil
		}
	}
	return nil, ErrNotFound
}

// MemberByName resolves a member by display name first, then username,
// both case-insensitive. Display name wins so staff can target the name
// they actually see in the member list.
func MemberByName(ctx context.Context, c Client, name string) (*Member, error) {
	members, err := c.Members(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	for _, m := range members {
		if m.DisplayName != "" && strings.ToLower(m.DisplayName) == lower {
			return m, nil
		}
	}
	for _, m := range members {
		if strings.ToLower(m.Username) == lower {
			return m, nil
		}
	}
	return nil, ErrNotFound
}
