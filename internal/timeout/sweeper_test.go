package timeout

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wardenbot/internal/platform"
	"wardenbot/internal/platform/platformtest"
	"wardenbot/pkg/logx"
)

func newSweepFixture(t *testing.T) (*Store, *platformtest.Fake, *Sweeper) {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "timeouts.txt"), logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fake := platformtest.New()
	w := NewSweeper(s, fake, logx.Nop())
	return s, fake, w
}

func TestScanRevokesExpired(t *testing.T) {
	s, fake, w := newSweepFixture(t)
	fake.AddMember(&platform.Member{ID: "10", Username: "alice", Roles: []string{"7"}})
	fake.AddMember(&platform.Member{ID: "11", Username: "bob", Roles: []string{"7"}})
	fake.AddRoleDef(&platform.Role{ID: "7", Name: "shush"})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mustAppend(t, s, Record{UserID: "10", RoleID: "7", Expiration: now.Add(-time.Minute)})
	mustAppend(t, s, Record{UserID: "11", RoleID: "7", Expiration: now}) // due exactly now
	mustAppend(t, s, Record{UserID: "10", RoleID: "7", Expiration: now.Add(time.Minute)})

	removed := w.Scan(context.Background(), now)
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if got := len(fake.CallsOf("RemoveRole")); got != 2 {
		t.Fatalf("expected 2 RemoveRole calls, got %d", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 record left, got %d", s.Len())
	}
	if left := s.Snapshot()[0]; !left.Expiration.After(now) {
		t.Fatalf("surviving record should be in the future: %+v", left)
	}
}

func TestScanNothingDue(t *testing.T) {
	s, fake, w := newSweepFixture(t)
	now := time.Now()
	mustAppend(t, s, Record{UserID: "10", RoleID: "7", Expiration: now.Add(time.Hour)})

	if removed := w.Scan(context.Background(), now); removed != 0 {
		t.Fatalf("expected 0 removed, got %d", removed)
	}
	if calls := fake.CallsOf("RemoveRole"); calls != nil {
		t.Fatalf("unexpected RemoveRole calls: %v", calls)
	}
}

func TestScanSecondPassIsIdempotent(t *testing.T) {
	s, fake, w := newSweepFixture(t)
	fake.AddMember(&platform.Member{ID: "10", Username: "alice", Roles: []string{"7"}})
	fake.AddRoleDef(&platform.Role{ID: "7", Name: "shush"})

	now := time.Now()
	mustAppend(t, s, Record{UserID: "10", RoleID: "7", Expiration: now.Add(-time.Second)})

	if removed := w.Scan(context.Background(), now); removed != 1 {
		t.Fatal("first scan should remove the record")
	}
	if removed := w.Scan(context.Background(), now); removed != 0 {
		t.Fatal("second scan should be a no-op")
	}
	if got := len(fake.CallsOf("RemoveRole")); got != 1 {
		t.Fatalf("role removed %d times, want exactly once", got)
	}
}

func TestScanMissingUserStillDropsRecord(t *testing.T) {
	s, fake, w := newSweepFixture(t)
	// No members registered: the user left the guild.
	fake.AddRoleDef(&platform.Role{ID: "7", Name: "shush"})

	mustAppend(t, s, Record{UserID: "10", RoleID: "7", Expiration: time.Now().Add(-time.Second)})

	if removed := w.Scan(context.Background(), time.Now()); removed != 1 {
		t.Fatalf("expected record dropped, store has %d", s.Len())
	}
	if calls := fake.CallsOf("RemoveRole"); calls != nil {
		t.Fatalf("should not call RemoveRole for a gone user: %v", calls)
	}
}

func TestScanMissingRoleStillDropsRecord(t *testing.T) {
	s, fake, w := newSweepFixture(t)
	fake.AddMember(&platform.Member{ID: "10", Username: "alice", Roles: []string{"7"}})

	mustAppend(t, s, Record{UserID: "10", RoleID: "7", Expiration: time.Now().Add(-time.Second)})

	if removed := w.Scan(context.Background(), time.Now()); removed != 1 {
		t.Fatal("expected record dropped for a deleted role")
	}
	if s.Len() != 0 {
		t.Fatalf("store should be empty, has %d", s.Len())
	}
}

func TestScanRemoveFailureStillDropsRecord(t *testing.T) {
	s, fake, w := newSweepFixture(t)
	fake.AddMember(&platform.Member{ID: "10", Username: "alice", Roles: []string{"7"}})
	fake.AddRoleDef(&platform.Role{ID: "7", Name: "shush"})
	fake.Err = errors.New("missing permissions")

	mustAppend(t, s, Record{UserID: "10", RoleID: "7", Expiration: time.Now().Add(-time.Second)})

	if removed := w.Scan(context.Background(), time.Now()); removed != 1 {
		t.Fatal("revocation is fire-and-forget, record must still be dropped")
	}
}

func TestStartAndStop(t *testing.T) {
	_, _, w := newSweepFixture(t)
	ctx := context.Background()
	if err := w.Start(ctx, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(ctx, time.Hour); err == nil {
		t.Fatal("second Start should fail")
	}
	if err := w.Apply(ctx, 2*time.Hour); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stopping twice is fine.
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func mustAppend(t *testing.T, s *Store, r Record) {
	t.Helper()
	if err := s.Append(r); err != nil {
		t.Fatalf("Append: %v", err)
	}
}
