package timeout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wardenbot/pkg/logx"
)

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "timeouts.txt")
}

func TestOpenCreatesMissingFile(t *testing.T) {
	path := storePath(t)
	s, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d records", s.Len())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backing file not created: %v", err)
	}
}

func TestAppendRoundTrip(t *testing.T) {
	path := storePath(t)
	s, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	exp := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	recs := []Record{
		{UserID: "111111111111111111", RoleID: "222222222222222222", Expiration: exp},
		{UserID: "333333333333333333", RoleID: "222222222222222222", Expiration: exp.Add(time.Hour)},
		// Duplicate pair with a different deadline stays independent.
		{UserID: "111111111111111111", RoleID: "222222222222222222", Expiration: exp.Add(2 * time.Hour)},
	}
	for _, r := range recs {
		if err := s.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reopened, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.Snapshot()
	if len(got) != len(recs) {
		t.Fatalf("expected %d records after reopen, got %d", len(recs), len(got))
	}
	for i, r := range recs {
		if got[i].UserID != r.UserID || got[i].RoleID != r.RoleID || !got[i].Expiration.Equal(r.Expiration) {
			t.Fatalf("record %d: got %+v, want %+v", i, got[i], r)
		}
	}
}

func TestOpenRejectsCorruptLine(t *testing.T) {
	path := storePath(t)
	content := "111 222 1700000000000\nnot a record\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	_, err := Open(path, logx.Nop())
	if err == nil {
		t.Fatal("expected error for corrupt file")
	}
	var corrupt *CorruptRecordError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptRecordError, got %T: %v", err, err)
	}
	if corrupt.Line != 2 {
		t.Fatalf("expected line 2, got %d", corrupt.Line)
	}
}

func TestOpenRejectsNonNumericFields(t *testing.T) {
	cases := []string{
		"abc 222 1700000000000",
		"111 def 1700000000000",
		"111 222 someday",
		"111 222",
		"111 222 1700000000000 extra",
	}
	for _, line := range cases {
		path := storePath(t)
		if err := os.WriteFile(path, []byte(line+"\n"), 0o600); err != nil {
			t.Fatalf("seed file: %v", err)
		}
		if _, err := Open(path, logx.Nop()); err == nil {
			t.Fatalf("expected error for line %q", line)
		}
	}
}

func TestOpenSkipsBlankLines(t *testing.T) {
	path := storePath(t)
	content := "\n111 222 1700000000000\n\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	s, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", s.Len())
	}
}

func TestRemoveAll(t *testing.T) {
	path := storePath(t)
	s, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	exp := time.Now().UTC().Truncate(time.Millisecond)
	for _, r := range []Record{
		{UserID: "1", RoleID: "2", Expiration: exp},
		{UserID: "3", RoleID: "2", Expiration: exp.Add(time.Hour)},
		{UserID: "5", RoleID: "2", Expiration: exp},
	} {
		if err := s.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	removed, err := s.RemoveAll(func(r Record) bool { return r.Expiration.Equal(exp) })
	if err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 record left, got %d", s.Len())
	}

	// Removal must survive a reopen.
	reopened, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Len() != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", reopened.Len())
	}
	if got := reopened.Snapshot()[0].UserID; got != "3" {
		t.Fatalf("wrong survivor: %s", got)
	}
}

func TestRemoveAllNoMatchLeavesFileAlone(t *testing.T) {
	path := storePath(t)
	s, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append(Record{UserID: "1", RoleID: "2", Expiration: time.Now()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	removed, err := s.RemoveAll(func(Record) bool { return false })
	if err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if removed != 0 || s.Len() != 1 {
		t.Fatalf("expected no-op, got removed=%d len=%d", removed, s.Len())
	}
}

func TestExpiredBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		exp  time.Time
		want bool
	}{
		{"past", now.Add(-time.Second), true},
		{"exactly now", now, true},
		{"future", now.Add(time.Second), false},
	}
	for _, tc := range cases {
		r := Record{Expiration: tc.exp}
		if got := r.Expired(now); got != tc.want {
			t.Fatalf("%s: Expired = %v, want %v", tc.name, got, tc.want)
		}
	}
}
