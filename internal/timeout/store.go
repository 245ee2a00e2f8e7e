// Package timeout owns temporary role grants: the durable record store
// and the sweep that revokes expired grants.
package timeout

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"wardenbot/pkg/logx"
)

// Record is one temporary grant. Multiple records for the same
// (user, role) pair are allowed; each one is revoked independently.
type Record struct {
	UserID     string
	RoleID     string
	Expiration time.Time
}

// Expired reports whether the record is due at now. Ties count as
// expired, so a sweep racing a fresh zero-duration grant wins.
func (r Record) Expired(now time.Time) bool { return !r.Expiration.After(now) }

// CorruptRecordError reports a persisted line that does not parse.
// Loading stops at the first such line; there is no partial recovery.
type CorruptRecordError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("timeout store %s: corrupt record at line %d: %q: %v", e.Path, e.Line, e.Text, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// Store is the durable set of active grants.
//
// The file holds one record per line: "userID roleID expirationMillis",
// decimal fields separated by single spaces. Every mutation rewrites the
// whole file under the mutex, so a mutation that returns is durable and
// two concurrent mutations can never lose each other's update.
type Store struct {
	mu      sync.Mutex
	path    string
	records []Record
	log     logx.Logger
}

// Open creates the backing file when missing, then loads every record.
// A corrupt file is an error; the caller treats that as fatal.
func Open(path string, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("timeout store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{path: path, log: log}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create timeout store %s: %w", path, err)
		}
		_ = f.Close()
	} else if err != nil {
		return nil, fmt.Errorf("stat timeout store %s: %w", path, err)
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	s.log.Info("timeout store loaded", logx.String("path", path), logx.Int("records", len(s.records)))
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read timeout store %s: %w", s.path, err)
	}

	var records []Record
	for i, line := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return &CorruptRecordError{Path: s.path, Line: i + 1, Text: line, Err: err}
		}
		records = append(records, rec)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

func parseLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("want 3 fields, got %d", len(fields))
	}
	userID, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("user id: %w", err)
	}
	roleID, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("role id: %w", err)
	}
	ms, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("expiration: %w", err)
	}
	return Record{
		UserID:     strconv.FormatUint(userID, 10),
		RoleID:     strconv.FormatUint(roleID, 10),
		Expiration: time.UnixMilli(ms).UTC(),
	}, nil
}

// Append adds one record and rewrites the file before returning.
// On a rewrite failure the record stays in memory so the sweep still
// revokes it; the next successful rewrite repairs the file.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.rewriteLocked()
}

// RemoveAll drops every record matching pred in one rewrite and returns
// how many were removed.
func (s *Store) RemoveAll(pred func(Record) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if !pred(rec) {
			kept = append(kept, rec)
		}
	}
	removed := len(s.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	prev := s.records
	s.records = kept
	if err := s.rewriteLocked(); err != nil {
		s.records = prev
		return 0, err
	}
	return removed, nil
}

// Snapshot returns a copy of the current record set.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// rewriteLocked serializes the whole record set and atomically replaces
// the file (write to tmp, rename over). Caller holds s.mu.
func (s *Store) rewriteLocked() error {
	var b strings.Builder
	for _, rec := range s.records {
		b.WriteString(rec.UserID)
		b.WriteString(" ")
		b.WriteString(rec.RoleID)
		b.WriteString(" ")
		b.WriteString(strconv.FormatInt(rec.Expiration.UnixMilli(), 10))
		b.WriteString("\n")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write timeout store %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace timeout store %s: %w", s.path, err)
	}
	s.log.Debug("timeout store rewritten", logx.Int("records", len(s.records)))
	return nil
}
