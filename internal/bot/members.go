package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wardenbot/internal/audit"
	"wardenbot/internal/config"
	"wardenbot/internal/platform"
	"wardenbot/internal/telemetry"
	"wardenbot/pkg/logx"
)

// onMemberJoin bans freshly created accounts and gives everyone else
// the configured join roles plus a welcome DM.
func (a *App) onMemberJoin(ctx context.Context, m *platform.Member) {
	if m == nil {
		return
	}
	cfg := a.cfgm.Get()

	minAge, _ := config.ParseDurationField("moderation.min_account_age", cfg.Moderation.MinAccountAge)
	if minAge > 0 {
		created := platform.CreatedAt(m.ID)
		if !created.IsZero() && time.Since(created) < minAge {
			a.log.Warn("banning newly created account",
				logx.String("user", m.Username),
				logx.Time("account_created", created))
			if err := a.client.Ban(ctx, m.ID, "account younger than the configured minimum age"); err != nil {
				a.log.Error("ban failed", logx.String("user_id", m.ID), logx.Err(err))
				return
			}
			telemetry.IncMembersBanned()
			a.recordAudit(ctx, audit.Entry{
				Action: "ban", UserID: m.ID, Username: m.Username,
				Detail: "new-account heuristic",
			})
			return
		}
	}

	for _, roleID := range cfg.Roles.Join {
		a.log.Info("adding join role", logx.String("user", m.Username), logx.String("role_id", roleID))
		if err := a.client.AddRole(ctx, m.ID, roleID); err != nil {
			a.log.Error("failed to add join role",
				logx.String("user_id", m.ID), logx.String("role_id", roleID), logx.Err(err))
		}
	}
	a.recordAudit(ctx, audit.Entry{Action: "member_joined", UserID: m.ID, Username: m.Username})

	if msg := strings.TrimSpace(cfg.WelcomeMessage); msg != "" {
		if err := a.client.SendDirectMessage(ctx, m.ID, msg); err != nil {
			a.log.Warn("failed to send welcome message", logx.String("user_id", m.ID), logx.Err(err))
		}
	}
}

func (a *App) onMemberLeave(ctx context.Context, m *platform.Member) {
	if m == nil {
		return
	}
	a.trackerNotice(ctx, fmt.Sprintf("%s left the server", m.Username))
	a.recordAudit(ctx, audit.Entry{Action: "member_left", UserID: m.ID, Username: m.Username})
}

// onMemberUpdate reports role changes, skipping the self-service join
// roles the bot itself shuffles around.
func (a *App) onMemberUpdate(ctx context.Context, before, after *platform.Member) {
	if before == nil || after == nil || len(before.Roles) == len(after.Roles) {
		return
	}
	cfg := a.cfgm.Get()
	joinRoles := map[string]bool{}
	for _, id := range cfg.Roles.Join {
		joinRoles[id] = true
	}

	for _, roleID := range before.Roles {
		if platform.HasRole(after, roleID) || joinRoles[roleID] {
			continue
		}
		a.reportRoleChange(ctx, after, roleID, "lost")
	}
	for _, roleID := range after.Roles {
		if platform.HasRole(before, roleID) || joinRoles[roleID] {
			continue
		}
		a.reportRoleChange(ctx, after, roleID, "gained")
	}
}

func (a *App) reportRoleChange(ctx context.Context, m *platform.Member, roleID, verb string) {
	roleName := roleID
	if role, err := a.client.Role(ctx, roleID); err == nil {
		roleName = role.Name
	}
	msg := fmt.Sprintf("Username %s %s role %s", m.Username, verb, roleName)
	a.log.Info(msg)
	a.trackerNotice(ctx, msg)
	a.recordAudit(ctx, audit.Entry{
		Action:   "role_" + verb,
		UserID:   m.ID,
		Username: m.Username,
		RoleID:   roleID,
		RoleName: roleName,
	})
}

func (a *App) trackerNotice(ctx context.Context, text string) {
	name := strings.TrimSpace(a.cfgm.Get().Channels.Tracker)
	if name == "" {
		return
	}
	ch, err := platform.ChannelByName(ctx, a.client, name)
	if err != nil {
		a.log.Warn("cannot resolve tracker channel", logx.String("name", name), logx.Err(err))
		return
	}
	if err := a.client.SendChannelMessage(ctx, ch.ID, text); err != nil {
		a.log.Warn("failed to post tracker notice", logx.Err(err))
	}
}

func (a *App) recordAudit(ctx context.Context, e audit.Entry) {
	if a.audits == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := a.audits.Append(ctx, e); err != nil {
		a.log.Warn("failed to record audit entry", logx.String("action", e.Action), logx.Err(err))
	}
}
