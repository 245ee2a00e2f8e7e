// Package grant applies roles to members: bounded temporary grants
// backed by the timeout store, and immediate self-service roles.
package grant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wardenbot/internal/platform"
	"wardenbot/internal/telemetry"
	"wardenbot/internal/timeout"
	"wardenbot/pkg/logx"
)

// Config holds the role allow-lists. Both are hot-reloadable via Apply.
type Config struct {
	// TemporaryRoleNames are the role names staff may grant with a
	// duration, matched case-insensitively.
	TemporaryRoleNames []string

	// SelfServiceRoleIDs are the join roles members may add or remove
	// on themselves.
	SelfServiceRoleIDs []string
}

type Coordinator struct {
	client platform.Client
	store  *timeout.Store
	log    logx.Logger
	clock  func() time.Time

	mu  sync.RWMutex
	cfg Config
}

func New(client platform.Client, store *timeout.Store, cfg Config, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{
		client: client,
		store:  store,
		log:    log,
		clock:  time.Now,
		cfg:    cfg,
	}
}

// Apply swaps the allow-lists (config hot reload).
func (c *Coordinator) Apply(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Coordinator) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// GrantTemporary gives targetName the named role for the given
// duration. The platform call is synchronous; the record is persisted
// before the ack. Validation failures come back as ReplyErrors, first
// failure wins: tier, then user, then role, then duration.
func (c *Coordinator) GrantTemporary(ctx context.Context, requester platform.Tier, targetName, roleName, amountRaw, unitRaw string) (string, error) {
	if !requester.AtLeast(platform.TierStaff) {
		return "", errUnauthorized()
	}

	member, err := platform.MemberByName(ctx, c.client, targetName)
	if err != nil {
		if platform.IsNotFound(err) {
			return "", errUnknownUser(targetName)
		}
		return "", fmt.Errorf("resolve user %q: %w", targetName, err)
	}

	cfg := c.config()
	if !nameAllowed(cfg.TemporaryRoleNames, roleName) {
		return "", errDisallowedRole(cfg.TemporaryRoleNames)
	}
	role, err := platform.RoleByName(ctx, c.client, roleName)
	if err != nil {
		if platform.IsNotFound(err) {
			return "", errUnknownRole(roleName)
		}
		return "", fmt.Errorf("resolve role %q: %w", roleName, err)
	}

	d, err := ParseDuration(amountRaw, unitRaw)
	if err != nil {
		return "", err
	}

	c.log.Info("applying temporary role",
		logx.String("user", member.Username),
		logx.String("role", role.Name),
		logx.Duration("for", d))
	if err := c.client.AddRole(ctx, member.ID, role.ID); err != nil {
		return "", fmt.Errorf("apply role %s to %s: %w", role.Name, member.Username, err)
	}

	rec := timeout.Record{UserID: member.ID, RoleID: role.ID, Expiration: c.clock().Add(d)}
	if err := c.store.Append(rec); err != nil {
		// The role is applied; losing the rewrite must not fail the
		// grant, but it has to be loud: durability is degraded.
		c.log.Error("failed to persist grant record", logx.Err(err),
			logx.String("user_id", rec.UserID), logx.String("role_id", rec.RoleID))
	}
	telemetry.IncGrantsIssued()

	return fmt.Sprintf("Gave %s the %s role until %s.",
		member.Username, role.Name, rec.Expiration.UTC().Format(time.RFC1123)), nil
}

// AddSelfServiceRole adds one of the configured join roles to the
// requesting member. No store interaction; the grant is permanent.
func (c *Coordinator) AddSelfServiceRole(ctx context.Context, userID, roleName string) (string, error) {
	return c.selfService(ctx, userID, roleName, true)
}

// RemoveSelfServiceRole removes one of the configured join roles.
func (c *Coordinator) RemoveSelfServiceRole(ctx context.Context, userID, roleName string) (string, error) {
	return c.selfService(ctx, userID, roleName, false)
}

func (c *Coordinator) selfService(ctx context.Context, userID, roleName string, add bool) (string, error) {
	role, err := platform.RoleByName(ctx, c.client, roleName)
	if err != nil {
		if platform.IsNotFound(err) {
			return "", errUnknownRole(roleName)
		}
		return "", fmt.Errorf("resolve role %q: %w", roleName, err)
	}

	cfg := c.config()
	if !idAllowed(cfg.SelfServiceRoleIDs, role.ID) {
		return "", errNotSelfService()
	}

	if _, err := c.client.Member(ctx, userID); err != nil {
		if platform.IsNotFound(err) {
			return "", errNotInGuild()
		}
		return "", fmt.Errorf("resolve member %s: %w", userID, err)
	}

	if add {
		err = c.client.AddRole(ctx, userID, role.ID)
	} else {
		err = c.client.RemoveRole(ctx, userID, role.ID)
	}
	if err != nil {
		return "", fmt.Errorf("update role %s for %s: %w", role.Name, userID, err)
	}
	return fmt.Sprintf("Role %s updated.", role.Name), nil
}

func nameAllowed(allowed []string, name string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

func idAllowed(allowed []string, id string) bool {
	for _, a := range allowed {
		if a == id {
			return true
		}
	}
	return false
}
