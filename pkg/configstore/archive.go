package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Archive persists snapshots in a sqlite database.
type Archive struct {
	conn *sql.DB
	log  *slog.Logger
	path string
}

// Summary describes an archived snapshot without its lines.
type Summary struct {
	ID       string
	Time     time.Time
	Comment  string
	Lines    int
	Complete bool
}

// OpenArchive opens or creates the archive at path.
func OpenArchive(path string, log *slog.Logger) (*Archive, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("archive pragma: %w", err)
		}
	}
	a := &Archive{conn: conn, log: log, path: path}
	if err := a.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	log.Debug("archive opened", "path", path)
	return a, nil
}

func (a *Archive) initSchema() error {
	_, err := a.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			codes TEXT NOT NULL DEFAULT '',
			line_count INTEGER NOT NULL,
			body TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at DESC);
	`)
	return err
}

// Close closes the database.
func (a *Archive) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Put stores snap, replacing an entry with the same id.
func (a *Archive) Put(ctx context.Context, snap *Snapshot) error {
	_, err := a.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (id, created_at, comment, codes, line_count, body)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Time.UTC().Format(timeFormat), snap.Comment,
		joinCodes(snap.Codes), len(snap.Lines), strings.Join(snap.Lines, "\n"))
	if err != nil {
		return fmt.Errorf("archive %s: %w", snap.ID, err)
	}
	return nil
}

// Get returns the most recent snapshot whose id starts with prefix.
func (a *Archive) Get(ctx context.Context, prefix string) (*Snapshot, error) {
	if prefix == "" {
		return nil, fmt.Errorf("snapshot %q: %w", prefix, ErrNoSnapshot)
	}
	row := a.conn.QueryRowContext(ctx,
		`SELECT id, created_at, comment, codes, line_count, body FROM snapshots
		 WHERE id LIKE ? || '%' ORDER BY created_at DESC LIMIT 1`, prefix)

	var (
		snap          Snapshot
		created, code string
		count         int
		body          string
	)
	if err := row.Scan(&snap.ID, &created, &snap.Comment, &code, &count, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %q: %w", prefix, ErrNoSnapshot)
		}
		return nil, fmt.Errorf("snapshot %q: %w", prefix, err)
	}
	snap.Time, _ = time.Parse(timeFormat, created)
	snap.Codes = splitCodes(code)
	if count > 0 {
		snap.Lines = strings.Split(body, "\n")
	}
	return &snap, nil
}

// List returns up to limit summaries, most recent first. limit <= 0
// returns all.
func (a *Archive) List(ctx context.Context, limit int) ([]Summary, error) {
	q := `SELECT id, created_at, comment, codes, line_count FROM snapshots ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := a.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s             Summary
			created, code string
		)
		if err := rows.Scan(&s.ID, &created, &s.Comment, &code, &s.Lines); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		s.Time, _ = time.Parse(timeFormat, created)
		s.Complete = code == ""
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots and returns the count
// removed.
func (a *Archive) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := a.conn.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		a.log.Info("pruned snapshot archive", "removed", n, "path", a.path)
	}
	return n, nil
}

func joinCodes(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

func splitCodes(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
