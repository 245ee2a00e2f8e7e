package router

import (
	"context"
	"strings"

	"wardenbot/internal/platform"
	"wardenbot/pkg/logx"
)

type helpEntry struct {
	usage string
	desc  string
}

var helpBase = []helpEntry{
	{"addRole [role]", "Adds a self-service role to your account. Wrap role names with spaces in quotes."},
	{"highlight [role] [message]", "Mentions a role in the main channel (ex: `.highlight teamgame Come play!`)."},
	{"removeRole [role]", "Removes a self-service role from your account."},
}

var helpStaff = []helpEntry{
	{"giveRole [name] [role] [amount] [min(s)/hour(s)/day(s)]", "Gives a role to a user for a period of time (ex: `.giveRole Zakken shush 30 mins`)."},
}

var helpManager = []helpEntry{
	{"audit [count]", "Shows the most recent audit entries."},
	{"crash", "Terminates the bot so the supervisor restart path can be verified."},
}

// handleHelp answers with the base command list, appending the staff
// and manager sections when the caller's live tier qualifies.
func (r *Router) handleHelp(ctx context.Context, msg *platform.Message, log logx.Logger) {
	log.Info("help requested")
	tier := r.tierOf(ctx, msg.AuthorID)

	var b strings.Builder
	writeSection(&b, "Available commands:", helpBase)
	if tier.AtLeast(platform.TierStaff) {
		writeSection(&b, "Staff commands:", helpStaff)
	}
	if tier.AtLeast(platform.TierManager) {
		writeSection(&b, "Manager commands:", helpManager)
	}
	r.replyDM(ctx, msg.AuthorID, b.String())
}

func writeSection(b *strings.Builder, title string, entries []helpEntry) {
	b.WriteString("```")
	b.WriteString(title)
	b.WriteString("```\n")
	for _, e := range entries {
		b.WriteString("`.")
		b.WriteString(e.usage)
		b.WriteString("`\n")
		b.WriteString(e.desc)
		b.WriteString("\n\n")
	}
}
