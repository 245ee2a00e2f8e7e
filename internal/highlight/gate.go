// Package highlight gates the role-mention broadcast behind a single
// process-wide cooldown shared by every caller.
package highlight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wardenbot/internal/platform"
	"wardenbot/internal/telemetry"
	"wardenbot/pkg/logx"
)

const DefaultCooldown = 15 * time.Minute

// Verdict is the outcome of a broadcast attempt.
type Verdict int

const (
	Sent Verdict = iota
	Throttled
)

// Gate owns the last-broadcast timestamp. The timestamp only advances
// on a successful send, and the mutex is held for the whole
// toggle-send-toggle sequence so broadcasts serialize.
type Gate struct {
	client platform.Client
	log    logx.Logger
	clock  func() time.Time

	mu       sync.Mutex
	cooldown time.Duration
	lastAt   time.Time
}

func NewGate(client platform.Client, cooldown time.Duration, log logx.Logger) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{
		client:   client,
		log:      log,
		clock:    time.Now,
		cooldown: cooldown,
	}
}

// SetCooldown updates the window (config hot reload). An in-progress
// cooldown is re-evaluated against the new window on the next attempt.
func (g *Gate) SetCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	g.cooldown = d
	g.mu.Unlock()
}

// Remaining reports how long until the next broadcast is allowed.
// Zero means the gate is open.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remainingLocked(g.clock())
}

func (g *Gate) remainingLocked(now time.Time) time.Duration {
	if g.lastAt.IsZero() {
		return 0
	}
	rem := g.lastAt.Add(g.cooldown).Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// TryBroadcast mentions the role in the channel on behalf of sender.
//
// The role is made mentionable for just the one message, then flipped
// back. When throttled, nothing is touched and the remaining wait is
// returned. A platform failure mid-sequence does not advance the
// cooldown, so the caller may retry immediately.
func (g *Gate) TryBroadcast(ctx context.Context, channelID string, role *platform.Role, senderName, text string) (Verdict, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if rem := g.remainingLocked(now); rem > 0 {
		telemetry.IncBroadcastsThrottled()
		return Throttled, rem, nil
	}

	if err := g.client.SetRoleMentionable(ctx, role.ID, true); err != nil {
		return Sent, 0, fmt.Errorf("make role %s mentionable: %w", role.Name, err)
	}
	sendErr := g.client.SendChannelMessage(ctx, channelID,
		fmt.Sprintf("<@&%s> (from %s): %s", role.ID, senderName, text))
	// Always try to flip the role back, even if the send failed.
	if err := g.client.SetRoleMentionable(ctx, role.ID, false); err != nil {
		g.log.Error("failed to reset role mentionable flag",
			logx.String("role", role.Name), logx.Err(err))
	}
	if sendErr != nil {
		return Sent, 0, fmt.Errorf("send highlight: %w", sendErr)
	}

	g.lastAt = now
	telemetry.IncBroadcastsSent()
	g.log.Info("highlight broadcast", logx.String("role", role.Name), logx.String("sender", senderName))
	return Sent, 0, nil
}
