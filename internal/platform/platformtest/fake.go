// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"wardenbot/internal/platform"
)

// Call records one mutating platform call, e.g. {"AddRole", "42", "7"}.
type Call struct {
	Op   string
	Args []string
}

// Fake is a thread-safe in-memory platform.Client. Zero value is usable;
// populate the fixture fields before handing it to the code under test.
type Fake struct {
	mu sync.Mutex

	SelfID      string
	Unavailable bool

	MembersByID map[string]*platform.Member
	RolesByID   map[string]*platform.Role
	ChannelList []*platform.Channel

	// Err, when set, is returned from every mutating call.
	Err error

	Calls       []Call
	ChannelMsgs map[string][]string // channelID -> messages
	DirectMsgs  map[string][]string // userID -> messages
}

var _ platform.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		MembersByID: map[string]*platform.Member{},
		RolesByID:   map[string]*platform.Role{},
		ChannelMsgs: map[string][]string{},
		DirectMsgs:  map[string][]string{},
	}
}

func (f *Fake) AddMember(m *platform.Member) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MembersByID[m.ID] = m
	return f
}

func (f *Fake) AddRoleDef(r *platform.Role) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RolesByID[r.ID] = r
	return f
}

func (f *Fake) AddChannel(ch *platform.Channel) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChannelList = append(f.ChannelList, ch)
	return f
}

func (f *Fake) record(op string, args ...string) {
	f.Calls = append(f.Calls, Call{Op: op, Args: args})
}

// CallsOf returns the recorded calls matching op, in order.
func (f *Fake) CallsOf(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) BotUserID() string { return f.SelfID }

func (f *Fake) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Unavailable
}

func (f *Fake) Member(_ context.Context, userID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unavailable {
		return nil, platform.ErrGuildUnavailable
	}
	m, ok := f.MembersByID[userID]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", platform.ErrNotFound, userID)
	}
	return m, nil
}

func (f *Fake) Members(_ context.Context) ([]*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unavailable {
		return nil, platform.ErrGuildUnavailable
	}
	out := make([]*platform.Member, 0, len(f.MembersByID))
	for _, m := range f.MembersByID {
		out = append(out, m)
	}
	return out, nil
}

func (f *Fake) Role(_ context.Context, roleID string) (*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unavailable {
		return nil, platform.ErrGuildUnavailable
	}
	r, ok := f.RolesByID[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", platform.ErrNotFound, roleID)
	}
	return r, nil
}

func (f *Fake) Roles(_ context.Context) ([]*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unavailable {
		return nil, platform.ErrGuildUnavailable
	}
	out := make([]*platform.Role, 0, len(f.RolesByID))
	for _, r := range f.RolesByID {
		out = append(out, r)
	}
	return out, nil
}

func (f *Fake) Channels(_ context.Context) ([]*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unavailable {
		return nil, platform.ErrGuildUnavailable
	}
	return append([]*platform.Channel(nil), f.ChannelList...), nil
}

func (f *Fake) AddRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddRole", userID, roleID)
	if f.Err != nil {
		return f.Err
	}
	if m, ok := f.MembersByID[userID]; ok && !platform.HasRole(m, roleID) {
		m.Roles = append(m.Roles, roleID)
	}
	return nil
}

func (f *Fake) RemoveRole(_ context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RemoveRole", userID, roleID)
	if f.Err != nil {
		return f.Err
	}
	if m, ok := f.MembersByID[userID]; ok {
		kept := m.Roles[:0]
		for _, id := range m.Roles {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		m.Roles = kept
	}
	return nil
}

func (f *Fake) SetRoleMentionable(_ context.Context, roleID string, mentionable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetRoleMentionable", roleID, fmt.Sprint(mentionable))
	if f.Err != nil {
		return f.Err
	}
	if r, ok := f.RolesByID[roleID]; ok {
		r.Mentionable = mentionable
	}
	return nil
}

func (f *Fake) Ban(_ context.Context, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Ban", userID, reason)
	return f.Err
}

func (f *Fake) SendChannelMessage(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendChannelMessage", channelID, text)
	if f.Err != nil {
		return f.Err
	}
	f.ChannelMsgs[channelID] = append(f.ChannelMsgs[channelID], text)
	return nil
}

func (f *Fake) SendDirectMessage(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendDirectMessage", userID, text)
	if f.Err != nil {
		return f.Err
	}
	f.DirectMsgs[userID] = append(f.DirectMsgs[userID], text)
	return nil
}
