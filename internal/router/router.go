// Package router maps inbound messages onto the moderation components,
// re-deriving the caller's tier from live role membership on every call.
package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"wardenbot/internal/audit"
	"wardenbot/internal/config"
	"wardenbot/internal/grant"
	"wardenbot/internal/highlight"
	"wardenbot/internal/platform"
	"wardenbot/internal/telemetry"
	"wardenbot/pkg/logx"
)

const internalErrorReply = "Something went wrong on our side. Try again shortly!"

type Router struct {
	client platform.Client
	cfgm   *config.Manager
	grants *grant.Coordinator
	gate   *highlight.Gate
	audits audit.Store // may be nil (auditing disabled)
	log    logx.Logger

	// terminate is invoked by the manager-only crash command.
	terminate func()
}

func New(client platform.Client, cfgm *config.Manager, grants *grant.Coordinator,
	gate *highlight.Gate, audits audit.Store, terminate func(), log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if terminate == nil {
		terminate = func() {}
	}
	return &Router{
		client:    client,
		cfgm:      cfgm,
		grants:    grants,
		gate:      gate,
		audits:    audits,
		log:       log,
		terminate: terminate,
	}
}

// HandleMessage dispatches one inbound message. It never returns an
// error: every failure is either answered to the requester or logged.
func (r *Router) HandleMessage(ctx context.Context, msg *platform.Message) {
	if msg == nil || msg.AuthorID == r.client.BotUserID() {
		return
	}

	tokens := SplitQuoted(msg.Content)
	if len(tokens) == 0 || len(tokens[0]) == 0 || tokens[0][0] != CommandRune {
		return
	}

	log := r.log.With(
		logx.String("req_id", uuid.NewString()),
		logx.String("from", msg.AuthorUsername),
		logx.String("cmd", tokens[0]))
	telemetry.IncCommandsHandled()

	start := time.Now()
	if msg.IsDirect {
		r.handleDirect(ctx, msg, tokens, log)
	} else {
		r.handleChannel(ctx, msg, tokens, log)
	}
	log.Debug("command handled", logx.Duration("dur", time.Since(start)))
}

func (r *Router) handleDirect(ctx context.Context, msg *platform.Message, tokens []string, log logx.Logger) {
	if !r.client.Available() {
		log.Warn("guild unavailable, cannot serve direct command")
		r.replyDM(ctx, msg.AuthorID,
			"ERROR: The bot's connection says our guild does not exist. Try again shortly!")
		return
	}

	switch strings.ToUpper(tokens[0][1:]) {
	case "ADDROLE":
		r.handleSelfServiceRole(ctx, msg, tokens, true, log)
	case "REMOVEROLE":
		r.handleSelfServiceRole(ctx, msg, tokens, false, log)
	case "GIVEROLE":
		r.handleGiveRole(ctx, msg, tokens, log)
	case "HELP":
		r.handleHelp(ctx, msg, log)
	case "AUDIT":
		r.handleAudit(ctx, msg, tokens, log)
	case "CRASH":
		r.handleCrash(ctx, msg, log)
	}
}

func (r *Router) handleChannel(ctx context.Context, msg *platform.Message, tokens []string, log logx.Logger) {
	switch strings.ToUpper(tokens[0][1:]) {
	case "HIGHLIGHT":
		r.handleHighlight(ctx, msg, tokens, log)
	default:
		// Only answer mistyped commands, and only in the highlight
		// channel; everywhere else stay silent.
		cfg := r.cfgm.Get()
		if msg.ChannelID == cfg.Channels.Highlight && LooksLikeCommand(tokens[0]) {
			r.replyChannel(ctx, msg.ChannelID, fmt.Sprintf("Unknown command '%s'", tokens[0]))
		}
	}
}

// tierOf derives the caller's tier from live membership. Unknown
// members are plain members.
func (r *Router) tierOf(ctx context.Context, userID string) platform.Tier {
	cfg := r.cfgm.Get()
	m, err := r.client.Member(ctx, userID)
	if err != nil {
		return platform.TierMember
	}
	return platform.TierOf(m, cfg.Roles.Staff, cfg.Roles.Manager)
}

func (r *Router) handleSelfServiceRole(ctx context.Context, msg *platform.Message, tokens []string, add bool, log logx.Logger) {
	log.Info("self-service role request", logx.Bool("add", add))
	if len(tokens) < 2 {
		r.replyDM(ctx, msg.AuthorID, "Not enough arguments. Send `.help` to the bot for usage instructions!")
		return
	}

	var ack string
	var err error
	if add {
		ack, err = r.grants.AddSelfServiceRole(ctx, msg.AuthorID, tokens[1])
	} else {
		ack, err = r.grants.RemoveSelfServiceRole(ctx, msg.AuthorID, tokens[1])
	}
	if err != nil {
		r.replyError(ctx, msg.AuthorID, err, log)
		return
	}
	r.replyDM(ctx, msg.AuthorID, ack)
}

func (r *Router) handleGiveRole(ctx context.Context, msg *platform.Message, tokens []string, log logx.Logger) {
	log.Info("temporary role request", logx.String("args", strings.Join(tokens[1:], " ")))
	if len(tokens) < 5 {
		r.replyDM(ctx, msg.AuthorID, "Invalid number of arguments. Send `.help` to the bot to see how to use this.")
		return
	}

	tier := r.tierOf(ctx, msg.AuthorID)
	ack, err := r.grants.GrantTemporary(ctx, tier, tokens[1], tokens[2], tokens[3], tokens[4])
	if err != nil {
		r.replyError(ctx, msg.AuthorID, err, log)
		return
	}
	r.recordAudit(ctx, audit.Entry{
		Action:  "grant",
		UserID:  msg.AuthorID,
		ActorID: msg.AuthorID,
		Detail:  strings.Join(tokens[1:], " "),
	})
	r.replyDM(ctx, msg.AuthorID, ack)
}

func (r *Router) handleHighlight(ctx context.Context, msg *platform.Message, tokens []string, log logx.Logger) {
	cfg := r.cfgm.Get()
	log.Info("highlight requested", logx.String("channel_id", msg.ChannelID))

	if msg.ChannelID != cfg.Channels.Highlight {
		r.replyChannel(ctx, msg.ChannelID, "Please use the main channel for highlights.")
		return
	}
	if len(tokens) < 3 {
		r.replyChannel(ctx, msg.ChannelID, "Not enough arguments. PM the bot with `.help` for usage instructions!")
		return
	}

	role, err := platform.RoleByName(ctx, r.client, tokens[1])
	if err != nil {
		if platform.IsNotFound(err) {
			r.replyChannel(ctx, msg.ChannelID,
				fmt.Sprintf("No such role `%s`. Did you spell it correctly? If the role has a space, wrap it in quotes.", tokens[1]))
			return
		}
		log.Error("role lookup failed", logx.Err(err))
		r.replyChannel(ctx, msg.ChannelID, internalErrorReply)
		return
	}
	if !contains(cfg.Roles.Join, role.ID) {
		r.replyChannel(ctx, msg.ChannelID, "The role provided cannot be highlighted.")
		return
	}

	text := strings.Join(tokens[2:], " ")
	verdict, remaining, err := r.gate.TryBroadcast(ctx, msg.ChannelID, role, msg.AuthorUsername, text)
	if err != nil {
		log.Error("broadcast failed", logx.Err(err))
		r.replyChannel(ctx, msg.ChannelID, internalErrorReply)
		return
	}
	if verdict == highlight.Throttled {
		mins := int(remaining.Minutes())
		secs := int(remaining.Seconds()) % 60
		r.replyChannel(ctx, msg.ChannelID,
			fmt.Sprintf("Someone has highlighted recently. Please wait %d minutes and %d seconds before trying again!", mins, secs))
		return
	}
	r.recordAudit(ctx, audit.Entry{
		Action:   "broadcast",
		UserID:   msg.AuthorID,
		Username: msg.AuthorUsername,
		RoleID:   role.ID,
		RoleName: role.Name,
		Detail:   text,
	})
}

func (r *Router) handleAudit(ctx context.Context, msg *platform.Message, tokens []string, log logx.Logger) {
	if !r.tierOf(ctx, msg.AuthorID).AtLeast(platform.TierManager) {
		return
	}
	if r.audits == nil {
		r.replyDM(ctx, msg.AuthorID, "Audit storage is disabled.")
		return
	}

	limit := 10
	if len(tokens) >= 2 {
		if n, err := strconv.Atoi(tokens[1]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	entries, err := r.audits.Recent(ctx, limit)
	if err != nil {
		log.Error("audit query failed", logx.Err(err))
		r.replyDM(ctx, msg.AuthorID, internalErrorReply)
		return
	}
	if len(entries) == 0 {
		r.replyDM(ctx, msg.AuthorID, "No audit entries recorded yet.")
		return
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "`%s` %s", e.At.UTC().Format("2006-01-02 15:04"), e.Action)
		if e.Username != "" {
			fmt.Fprintf(&b, " %s", e.Username)
		}
		if e.RoleName != "" {
			fmt.Fprintf(&b, " (%s)", e.RoleName)
		}
		if e.Detail != "" {
			fmt.Fprintf(&b, ": %s", e.Detail)
		}
		b.WriteString("\n")
	}
	r.replyDM(ctx, msg.AuthorID, b.String())
}

func (r *Router) handleCrash(ctx context.Context, msg *platform.Message, log logx.Logger) {
	if !r.tierOf(ctx, msg.AuthorID).AtLeast(platform.TierManager) {
		return
	}
	log.Warn("crash invoked, terminating process")
	_ = ctx
	r.terminate()
}

// replyError answers validation/lookup/authorization failures with
// their user-facing text; anything else is logged and answered with a
// generic apology. Internals never leak to the requester.
func (r *Router) replyError(ctx context.Context, userID string, err error, log logx.Logger) {
	var re *grant.ReplyError
	if errors.As(err, &re) {
		r.replyDM(ctx, userID, re.Text)
		return
	}
	log.Error("command failed", logx.Err(err))
	r.replyDM(ctx, userID, internalErrorReply)
}

func (r *Router) replyDM(ctx context.Context, userID, text string) {
	if err := r.client.SendDirectMessage(ctx, userID, text); err != nil {
		r.log.Warn("failed to send direct reply", logx.String("user_id", userID), logx.Err(err))
	}
}

func (r *Router) replyChannel(ctx context.Context, channelID, text string) {
	if err := r.client.SendChannelMessage(ctx, channelID, text); err != nil {
		r.log.Warn("failed to send channel reply", logx.String("channel_id", channelID), logx.Err(err))
	}
}

func (r *Router) recordAudit(ctx context.Context, e audit.Entry) {
	if r.audits == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := r.audits.Append(ctx, e); err != nil {
		r.log.Warn("failed to record audit entry", logx.String("action", e.Action), logx.Err(err))
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
