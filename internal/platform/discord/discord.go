// Package discord implements platform.Client on top of a discordgo
// gateway session scoped to a single guild.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"wardenbot/internal/platform"
	"wardenbot/pkg/logx"
)

type Config struct {
	Token   string
	GuildID string
}

type Client struct {
	cfg Config
	log logx.Logger

	session *discordgo.Session

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if strings.TrimSpace(cfg.GuildID) == "" {
		return nil, errors.New("discord guild_id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Member and message events plus message content are all required;
	// members must be cached eagerly for name lookups.
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	s.State.TrackMembers = true
	s.State.TrackRoles = true
	s.State.TrackChannels = true

	return &Client{cfg: cfg, log: log, session: s}, nil
}

// Start opens the gateway connection and installs event handlers.
// Handlers fire on discordgo's dispatch goroutines.
func (c *Client) Start(ctx context.Context, h platform.Handlers) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return nil
	}

	c.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		if h.Ready != nil {
			h.Ready()
		}
	})
	c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if h.MessageCreate == nil || m.Author == nil {
			return
		}
		// Guild messages must come from our guild; everything without a
		// guild ID is a DM.
		if m.GuildID != "" && m.GuildID != c.cfg.GuildID {
			return
		}
		h.MessageCreate(&platform.Message{
			ID:             m.ID,
			ChannelID:      m.ChannelID,
			AuthorID:       m.Author.ID,
			AuthorUsername: m.Author.Username,
			Content:        m.Content,
			IsDirect:       m.GuildID == "",
		})
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if h.MemberJoin == nil || e.GuildID != c.cfg.GuildID {
			return
		}
		h.MemberJoin(toMember(e.Member))
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
		if h.MemberLeave == nil || e.GuildID != c.cfg.GuildID {
			return
		}
		h.MemberLeave(toMember(e.Member))
	})
	c.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
		if h.MemberUpdate == nil || e.GuildID != c.cfg.GuildID {
			return
		}
		h.MemberUpdate(toMember(e.BeforeUpdate), toMember(e.Member))
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	c.running = true
	_ = ctx
	return nil
}

func (c *Client) Stop(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	_ = ctx
	return c.session.Close()
}

func (c *Client) BotUserID() string {
	if c.session.State != nil && c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}

func (c *Client) Available() bool {
	g, err := c.session.State.Guild(c.cfg.GuildID)
	return err == nil && g != nil && !g.Unavailable
}

func (c *Client) Member(ctx context.Context, userID string) (*platform.Member, error) {
	if m, err := c.session.State.Member(c.cfg.GuildID, userID); err == nil {
		return toMember(m), nil
	}
	m, err := c.session.GuildMember(c.cfg.GuildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	return toMember(m), nil
}

func (c *Client) Members(ctx context.Context) ([]*platform.Member, error) {
	// Prefer the gateway cache (populated via the members intent); fall
	// back to paginated REST listing when it is empty.
	if g, err := c.session.State.Guild(c.cfg.GuildID); err == nil && len(g.Members) > 0 {
		out := make([]*platform.Member, 0, len(g.Members))
		for _, m := range g.Members {
			out = append(out, toMember(m))
		}
		return out, nil
	}

	var out []*platform.Member
	after := ""
	for {
		page, err := c.session.GuildMembers(c.cfg.GuildID, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapErr(err)
		}
		for _, m := range page {
			out = append(out, toMember(m))
		}
		if len(page) < 1000 {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (c *Client) Role(ctx context.Context, roleID string) (*platform.Role, error) {
	if r, err := c.session.State.Role(c.cfg.GuildID, roleID); err == nil {
		return toRole(r), nil
	}
	roles, err := c.session.GuildRoles(c.cfg.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return toRole(r), nil
		}
	}
	return nil, platform.ErrNotFound
}

func (c *Client) Roles(ctx context.Context) ([]*platform.Role, error) {
	roles, err := c.session.GuildRoles(c.cfg.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]*platform.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, toRole(r))
	}
	return out, nil
}

func (c *Client) Channels(ctx context.Context) ([]*platform.Channel, error) {
	channels, err := c.session.GuildChannels(c.cfg.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]*platform.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		out = append(out, &platform.Channel{ID: ch.ID, Name: ch.Name})
	}
	return out, nil
}

func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	return mapErr(c.session.GuildMemberRoleAdd(c.cfg.GuildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	return mapErr(c.session.GuildMemberRoleRemove(c.cfg.GuildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (c *Client) SetRoleMentionable(ctx context.Context, roleID string, mentionable bool) error {
	_, err := c.session.GuildRoleEdit(c.cfg.GuildID, roleID,
		&discordgo.RoleParams{Mentionable: &mentionable}, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (c *Client) Ban(ctx context.Context, userID, reason string) error {
	return mapErr(c.session.GuildBanCreateWithReason(c.cfg.GuildID, userID, reason, 0, discordgo.WithContext(ctx)))
}

func (c *Client) SendChannelMessage(ctx context.Context, channelID, text string) error {
	_, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (c *Client) SendDirectMessage(ctx context.Context, userID, text string) error {
	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	_, err = c.session.ChannelMessageSend(dm.ID, text, discordgo.WithContext(ctx))
	return mapErr(err)
}

func toMember(m *discordgo.Member) *platform.Member {
	if m == nil || m.User == nil {
		return nil
	}
	return &platform.Member{
		ID:          m.User.ID,
		Username:    m.User.Username,
		DisplayName: m.Nick,
		Roles:       append([]string(nil), m.Roles...),
	}
}

func toRole(r *discordgo.Role) *platform.Role {
	return &platform.Role{ID: r.ID, Name: r.Name, Mentionable: r.Mentionable}
}

// mapErr normalizes discordgo REST errors onto the platform sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	return err
}
