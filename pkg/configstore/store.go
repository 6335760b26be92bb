// Package configstore keeps snapshots of generated running configurations
// so they can be listed, compared, saved to files and archived in sqlite.
package configstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psaab/bigsh/pkg/scoreboard"
)

// ErrNoSnapshot is returned when a requested snapshot does not exist.
var ErrNoSnapshot = errors.New("no such snapshot")

// Snapshot is one generated running configuration.
type Snapshot struct {
	ID      string
	Time    time.Time
	Comment string
	Lines   []string
	Codes   []int // transport codes that made the output incomplete
}

// Text returns the snapshot as it was printed.
func (s *Snapshot) Text() string {
	if len(s.Lines) == 0 {
		return ""
	}
	return strings.Join(s.Lines, "\n") + "\n"
}

// Complete reports whether every top path was read.
func (s *Snapshot) Complete() bool { return len(s.Codes) == 0 }

// Store records snapshots in a history ring and, optionally, an archive.
type Store struct {
	mu      sync.Mutex
	history *History
	archive *Archive
	log     *slog.Logger
	now     func() time.Time
}

// New returns a store keeping size snapshots in memory. archive may be nil.
func New(size int, archive *Archive, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		history: NewHistory(size),
		archive: archive,
		log:     log,
		now:     time.Now,
	}
}

// History returns the in-memory ring.
func (s *Store) History() *History { return s.history }

// Record stores lines as a new snapshot. An archive failure is logged; the
// snapshot is still kept in memory.
func (s *Store) Record(ctx context.Context, lines []string, codes []int, comment string) *Snapshot {
	s.mu.Lock()
	snap := &Snapshot{
		ID:      uuid.NewString(),
		Time:    s.now(),
		Comment: comment,
		Lines:   append([]string(nil), lines...),
		Codes:   append([]int(nil), codes...),
	}
	s.mu.Unlock()

	s.history.Push(snap)
	if s.archive != nil {
		if err := s.archive.Put(ctx, snap); err != nil {
			s.log.Warn("failed to archive snapshot", "id", snap.ID, "err", err)
		}
	}
	s.log.Debug("snapshot recorded", "id", snap.ID, "lines", len(lines))
	return snap
}

// Lookup resolves ref as a history index ("0" is the latest) or an id
// prefix, falling back to the archive for ids.
func (s *Store) Lookup(ctx context.Context, ref string) (*Snapshot, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if snap, err := s.history.Get(n); err == nil {
			return snap, nil
		}
	}
	snap, err := s.history.Find(ref)
	if err == nil || s.archive == nil {
		return snap, err
	}
	return s.archive.Get(ctx, ref)
}

// Archived lists up to limit archived snapshots, newest first. Without an
// archive the list is empty.
func (s *Store) Archived(ctx context.Context, limit int) ([]Summary, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.List(ctx, limit)
}

// Prune trims the archive to its newest keep snapshots.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if s.archive == nil {
		return 0, nil
	}
	return s.archive.Prune(ctx, keep)
}

// Compare returns the lines removed from a and added in b. Each nested
// line is qualified by its enclosing submode lines so that identical
// commands in different submodes differ.
func Compare(a, b *Snapshot) string {
	before := qualify(a.Lines)
	after := qualify(b.Lines)

	inBefore := make(map[string]bool, len(before))
	for _, l := range before {
		inBefore[l] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, l := range after {
		inAfter[l] = true
	}

	var sb strings.Builder
	for _, l := range before {
		if !inAfter[l] {
			fmt.Fprintf(&sb, "- %s\n", l)
		}
	}
	for _, l := range after {
		if !inBefore[l] {
			fmt.Fprintf(&sb, "+ %s\n", l)
		}
	}
	if sb.Len() == 0 {
		return "[no changes]\n"
	}
	return sb.String()
}

// qualify flattens indented running-config lines into "parent > child"
// form. Blank and comment lines are dropped.
func qualify(lines []string) []string {
	var (
		out   []string
		stack []string
	)
	for _, line := range lines {
		text := strings.TrimLeft(line, " ")
		if text == "" || strings.HasPrefix(text, "!") {
			continue
		}
		depth := (len(line) - len(text)) / 2
		if depth > len(stack) {
			depth = len(stack)
		}
		stack = append(stack[:depth], text)
		out = append(out, strings.Join(stack, " > "))
	}
	return out
}

// Save writes snap to path in its printed form.
func Save(path string, snap *Snapshot) error {
	if err := os.WriteFile(path, []byte(snap.Text()), 0o644); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads a saved running configuration. Codes are recovered from the
// incomplete-output banner.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap := &Snapshot{ID: uuid.NewString(), Time: st.ModTime(), Comment: path}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if rest, ok := strings.CutPrefix(line, scoreboard.IncompletePrefix); ok {
			for _, name := range strings.Split(rest, ", ") {
				if code, ok := scoreboard.CodeFromName(name); ok {
					snap.Codes = append(snap.Codes, code)
				}
			}
		}
		snap.Lines = append(snap.Lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}
