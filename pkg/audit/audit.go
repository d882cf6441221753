// Package audit keeps a SQLite log of admin actions taken against the world.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("audit: store closed")

const schema = `CREATE TABLE IF NOT EXISTS admin_actions (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	at     INTEGER NOT NULL,
	actor  INTEGER NOT NULL,
	action TEXT    NOT NULL,
	origin INTEGER NOT NULL,
	grids  TEXT    NOT NULL,
	detail TEXT    NOT NULL DEFAULT ''
)`

// Entry is one recorded admin action.
type Entry struct {
	ID     int64            `json:"id"`
	At     time.Time        `json:"at"`
	Actor  world.PlayerID   `json:"actor"`
	Action string           `json:"action"`
	Origin world.EntityID   `json:"origin"`
	Grids  []world.EntityID `json:"grids"`
	Detail string           `json:"detail,omitempty"`
}

// Store manages the SQLite audit database.
type Store struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration
}

// Open opens (or creates) the audit database, sets WAL mode and busy timeout
// and ensures the schema exists.
func Open(path string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &Store{db: db, path: path, timeout: timeout}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the filesystem path of the audit database.
func (s *Store) Path() string { return s.path }

// Checkpoint flushes the WAL into the main database file.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Record appends an entry. A zero At is stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_actions (at, actor, action, origin, grids, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		e.At.UnixNano(), int64(e.Actor), e.Action, int64(e.Origin), joinIDs(e.Grids), e.Detail)
	if err != nil {
		return 0, fmt.Errorf("audit: record %s: %w", e.Action, err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, actor, action, origin, grids, detail FROM admin_actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e             Entry
			at            int64
			actor, origin int64
			grids         string
		)
		if err := rows.Scan(&e.ID, &at, &actor, &e.Action, &origin, &grids, &e.Detail); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.At = time.Unix(0, at)
		e.Actor = world.PlayerID(actor)
		e.Origin = world.EntityID(origin)
		e.Grids, err = splitIDs(grids)
		if err != nil {
			return nil, fmt.Errorf("audit: entry %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func joinIDs(ids []world.EntityID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]world.EntityID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]world.EntityID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad grid id %q: %w", p, err)
		}
		out = append(out, world.EntityID(n))
	}
	return out, nil
}
