package grant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wardenbot/internal/platform"
	"wardenbot/internal/platform/platformtest"
	"wardenbot/internal/timeout"
	"wardenbot/pkg/logx"
)

func newFixture(t *testing.T) (*platformtest.Fake, *timeout.Store, *Coordinator) {
	t.Helper()
	store, err := timeout.Open(filepath.Join(t.TempDir(), "timeouts.txt"), logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	fake := platformtest.New()
	fake.AddMember(&platform.Member{ID: "100", Username: "zakken", DisplayName: "Mr Person"})
	fake.AddRoleDef(&platform.Role{ID: "7", Name: "shush"})
	fake.AddRoleDef(&platform.Role{ID: "8", Name: "teamgame"})
	fake.AddRoleDef(&platform.Role{ID: "9", Name: "moderator"})

	c := New(fake, store, Config{
		TemporaryRoleNames: []string{"shush"},
		SelfServiceRoleIDs: []string{"8"},
	}, logx.Nop())
	return fake, store, c
}

func TestGrantTemporary(t *testing.T) {
	fake, store, c := newFixture(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }

	ack, err := c.GrantTemporary(context.Background(), platform.TierStaff, "zakken", "shush", "30", "mins")
	if err != nil {
		t.Fatalf("GrantTemporary: %v", err)
	}
	if !strings.Contains(ack, "zakken") || !strings.Contains(ack, "shush") {
		t.Fatalf("ack does not name the user and role: %q", ack)
	}

	if got := len(fake.CallsOf("AddRole")); got != 1 {
		t.Fatalf("expected 1 AddRole call, got %d", got)
	}
	recs := store.Snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	want := now.Add(30 * time.Minute)
	if recs[0].UserID != "100" || recs[0].RoleID != "7" || !recs[0].Expiration.Equal(want) {
		t.Fatalf("bad record %+v, want user 100 role 7 expiring %v", recs[0], want)
	}
}

func TestGrantTemporaryByDisplayName(t *testing.T) {
	_, store, c := newFixture(t)
	if _, err := c.GrantTemporary(context.Background(), platform.TierStaff, "mr person", "shush", "1", "hour"); err != nil {
		t.Fatalf("GrantTemporary: %v", err)
	}
	if store.Len() != 1 {
		t.Fatal("expected a persisted record")
	}
}

func TestGrantTemporaryValidation(t *testing.T) {
	cases := []struct {
		name   string
		tier   platform.Tier
		target string
		role   string
		amount string
		unit   string
		kind   Kind
	}{
		{"member tier refused", platform.TierMember, "zakken", "shush", "30", "mins", KindAuthorization},
		{"unknown user", platform.TierStaff, "nobody", "shush", "30", "mins", KindNotFound},
		{"role not on allow-list", platform.TierStaff, "zakken", "moderator", "30", "mins", KindValidation},
		{"bad amount", platform.TierStaff, "zakken", "shush", "soon", "mins", KindValidation},
		{"negative amount", platform.TierStaff, "zakken", "shush", "-5", "mins", KindValidation},
		{"bad unit", platform.TierStaff, "zakken", "shush", "30", "fortnights", KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake, store, c := newFixture(t)
			_, err := c.GrantTemporary(context.Background(), tc.tier, tc.target, tc.role, tc.amount, tc.unit)
			var re *ReplyError
			if !errors.As(err, &re) {
				t.Fatalf("expected ReplyError, got %v", err)
			}
			if re.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", re.Kind, tc.kind)
			}
			if store.Len() != 0 {
				t.Fatal("failed grant must not persist a record")
			}
			if calls := fake.CallsOf("AddRole"); calls != nil {
				t.Fatalf("failed grant must not touch roles: %v", calls)
			}
		})
	}
}

// The authorization check has to win even when everything else about
// the request is also wrong.
func TestGrantTemporaryUnauthorizedWinsOverBadArgs(t *testing.T) {
	_, _, c := newFixture(t)
	_, err := c.GrantTemporary(context.Background(), platform.TierMember, "nobody", "nothing", "x", "y")
	var re *ReplyError
	if !errors.As(err, &re) || re.Kind != KindAuthorization {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestGrantTemporaryAllowListBeforeRoleLookup(t *testing.T) {
	fake, _, c := newFixture(t)
	// "ghost" is allow-listed in this config but does not exist yet.
	c.Apply(Config{TemporaryRoleNames: []string{"ghost"}})

	_, err := c.GrantTemporary(context.Background(), platform.TierStaff, "zakken", "ghost", "30", "mins")
	var re *ReplyError
	if !errors.As(err, &re) || re.Kind != KindNotFound {
		t.Fatalf("expected role not-found, got %v", err)
	}
	if calls := fake.CallsOf("AddRole"); calls != nil {
		t.Fatalf("unexpected AddRole: %v", calls)
	}
}

func TestGrantTemporaryAllowListCaseInsensitive(t *testing.T) {
	_, store, c := newFixture(t)
	if _, err := c.GrantTemporary(context.Background(), platform.TierManager, "zakken", "SHUSH", "1", "day"); err != nil {
		t.Fatalf("GrantTemporary: %v", err)
	}
	if store.Len() != 1 {
		t.Fatal("expected a persisted record")
	}
}

func TestSelfServiceRoles(t *testing.T) {
	fake, _, c := newFixture(t)
	ctx := context.Background()

	if _, err := c.AddSelfServiceRole(ctx, "100", "teamgame"); err != nil {
		t.Fatalf("AddSelfServiceRole: %v", err)
	}
	if !platform.HasRole(fake.MembersByID["100"], "8") {
		t.Fatal("role not applied")
	}

	if _, err := c.RemoveSelfServiceRole(ctx, "100", "teamgame"); err != nil {
		t.Fatalf("RemoveSelfServiceRole: %v", err)
	}
	if platform.HasRole(fake.MembersByID["100"], "8") {
		t.Fatal("role not removed")
	}
}

func TestSelfServiceRejectsUnlistedRole(t *testing.T) {
	fake, _, c := newFixture(t)
	_, err := c.AddSelfServiceRole(context.Background(), "100", "moderator")
	var re *ReplyError
	if !errors.As(err, &re) || re.Kind != KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if calls := fake.CallsOf("AddRole"); calls != nil {
		t.Fatalf("unexpected AddRole: %v", calls)
	}
}

func TestSelfServiceRejectsNonMember(t *testing.T) {
	_, _, c := newFixture(t)
	_, err := c.AddSelfServiceRole(context.Background(), "999", "teamgame")
	var re *ReplyError
	if !errors.As(err, &re) || re.Kind != KindNotFound {
		t.Fatalf("expected not-in-guild failure, got %v", err)
	}
}

// Grant then sweep: the role comes off once the clock passes the
// recorded expiration.
func TestGrantThenSweep(t *testing.T) {
	fake, store, c := newFixture(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }

	if _, err := c.GrantTemporary(context.Background(), platform.TierStaff, "zakken", "shush", "30", "mins"); err != nil {
		t.Fatalf("GrantTemporary: %v", err)
	}

	w := timeout.NewSweeper(store, fake, logx.Nop())
	if removed := w.Scan(context.Background(), now.Add(29*time.Minute)); removed != 0 {
		t.Fatal("sweep removed a live grant")
	}
	if removed := w.Scan(context.Background(), now.Add(30*time.Minute)); removed != 1 {
		t.Fatal("sweep missed the due grant")
	}
	if got := len(fake.CallsOf("RemoveRole")); got != 1 {
		t.Fatalf("expected 1 RemoveRole, got %d", got)
	}
	if platform.HasRole(fake.MembersByID["100"], "7") {
		t.Fatal("role still on the member after sweep")
	}
}
