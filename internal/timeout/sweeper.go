package timeout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wardenbot/internal/platform"
	"wardenbot/internal/telemetry"
	"wardenbot/pkg/logx"
)

const DefaultPulse = 10 * time.Second

// Sweeper periodically scans the store and revokes expired grants.
//
// Revocation is fire-and-forget: a record is removed after its sweep
// attempt whether or not the platform call succeeded. A user or role
// that no longer resolves is treated as already revoked.
type Sweeper struct {
	store  *Store
	client platform.Client
	log    logx.Logger
	clock  func() time.Time

	mu    sync.Mutex
	c     *cron.Cron
	pulse time.Duration
}

func NewSweeper(store *Store, client platform.Client, log logx.Logger) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{
		store:  store,
		client: client,
		log:    log,
		clock:  time.Now,
	}
}

// Start begins the pulse loop. Safe to call once; use Apply for pulse
// changes afterwards.
func (w *Sweeper) Start(ctx context.Context, pulse time.Duration) error {
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		return errors.New("sweeper already started")
	}
	return w.startLocked(ctx, pulse)
}

func (w *Sweeper) startLocked(ctx context.Context, pulse time.Duration) error {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", pulse), func() {
		w.Scan(ctx, w.clock())
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	w.c = c
	w.pulse = pulse
	w.log.Info("sweep started", logx.Duration("pulse", pulse))
	return nil
}

// Apply updates the pulse interval, restarting the schedule if needed.
func (w *Sweeper) Apply(ctx context.Context, pulse time.Duration) error {
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil || pulse == w.pulse {
		w.pulse = pulse
		return nil
	}
	<-w.c.Stop().Done()
	w.c = nil
	return w.startLocked(ctx, pulse)
}

// Stop halts the pulse and waits for an in-flight scan to finish.
// The next tick is skipped; nothing interrupts a running revocation.
func (w *Sweeper) Stop(ctx context.Context) error {
	w.mu.Lock()
	c := w.c
	w.c = nil
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scan revokes every record expired at now and removes the attempted
// batch from the store in a single rewrite. Returns how many records
// were removed.
func (w *Sweeper) Scan(ctx context.Context, now time.Time) int {
	telemetry.IncSweepScans()

	attempted := map[Record]bool{}
	for _, rec := range w.store.Snapshot() {
		if !rec.Expired(now) {
			continue
		}
		attempted[rec] = true
		w.revoke(ctx, rec)
	}
	if len(attempted) == 0 {
		return 0
	}

	removed, err := w.store.RemoveAll(func(r Record) bool { return attempted[r] })
	if err != nil {
		// Durability is degraded but the process must keep running;
		// the next scan retries the rewrite.
		w.log.Error("failed to persist sweep removals", logx.Err(err), logx.Int("batch", len(attempted)))
		return 0
	}
	w.log.Info("sweep removed expired grants", logx.Int("removed", removed))
	return removed
}

func (w *Sweeper) revoke(ctx context.Context, rec Record) {
	fields := []logx.Field{
		logx.String("user_id", rec.UserID),
		logx.String("role_id", rec.RoleID),
		logx.Time("expired_at", rec.Expiration),
	}

	member, err := w.client.Member(ctx, rec.UserID)
	if err != nil {
		// Gone users have nothing to revoke; drop the record.
		w.log.Warn("cannot resolve user for expired grant", append(fields, logx.Err(err))...)
		return
	}
	role, err := w.client.Role(ctx, rec.RoleID)
	if err != nil {
		w.log.Warn("cannot resolve role for expired grant", append(fields, logx.Err(err))...)
		return
	}

	w.log.Info("removing expired role",
		logx.String("user", member.Username), logx.String("role", role.Name))
	if err := w.client.RemoveRole(ctx, rec.UserID, rec.RoleID); err != nil {
		w.log.Error("failed to remove expired role", append(fields, logx.Err(err))...)
		return
	}
	telemetry.IncRolesRevoked()
}
