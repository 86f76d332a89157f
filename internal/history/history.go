// Package history keeps a SQLite journal of update sessions so operators
// can see which image each device last received and how it went.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/muurk/localota/internal/logging"
	"github.com/muurk/localota/internal/session"
)

// PathEnvVar overrides the journal location.
const PathEnvVar = "LOCALOTA_HISTORY_DB"

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 20

// Entry is one journaled session.
type Entry struct {
	ID             int64
	SessionID      string
	Device         string
	Outcome        string
	ExitCode       int
	State          string
	Version        string
	Checksum       string
	Size           int64
	Host           string
	CurrentVersion string
	DeviceError    string
	Warnings       []string
	Error          string
	CleanupError   string
	BinaryFetches  int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration is the wall time of the session.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Filter narrows List.
type Filter struct {
	Device string
	Limit  int
}

// Store is an open journal.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the journal path under the XDG data directory.
func DefaultPath() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	return filepath.Join(xdg.DataHome, "localota", "history.sqlite")
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	logging.Debug("history journal opened", zap.String("path", path))
	return &Store{db: db}, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func migrate(db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		device TEXT NOT NULL,
		outcome TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		state TEXT NOT NULL,
		version TEXT,
		checksum TEXT,
		size INTEGER,
		host TEXT,
		current_version TEXT,
		device_error TEXT,
		warnings TEXT,
		error TEXT,
		cleanup_error TEXT,
		binary_fetches INTEGER,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_device_started ON sessions(device, started_at);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("history: create schema: %w", err)
	}
	return nil
}

// Close closes the journal.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a finished session. Recording the same session twice is a
// no-op.
func (s *Store) Record(ctx context.Context, r *session.Report) error {
	if r == nil || r.SessionID == "" {
		return errors.New("history: report has no session id")
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO sessions (
		session_id, device, outcome, exit_code, state, version, checksum, size, host,
		current_version, device_error, warnings, error, cleanup_error, binary_fetches,
		started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Device, r.Outcome.String(), r.ExitCode(), r.State.String(),
		r.Version, r.Checksum, r.Size, r.Host,
		r.CurrentVersion, r.DeviceError, strings.Join(r.Warnings, "\n"),
		errString(r.Err), errString(r.CleanupErr), r.BinaryFetches,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: record session %s: %w", r.SessionID, err)
	}
	return nil
}

// List returns sessions newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := `SELECT id, session_id, device, outcome, exit_code, state, version, checksum, size,
		host, current_version, device_error, warnings, error, cleanup_error, binary_fetches,
		started_at, finished_at FROM sessions`
	var args []any
	if f.Device != "" {
		query += ` WHERE device = ?`
		args = append(args, f.Device)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			warnings          string
			started, finished int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Device, &e.Outcome, &e.ExitCode, &e.State,
			&e.Version, &e.Checksum, &e.Size, &e.Host, &e.CurrentVersion, &e.DeviceError,
			&warnings, &e.Error, &e.CleanupError, &e.BinaryFetches, &started, &finished); err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		if warnings != "" {
			e.Warnings = strings.Split(warnings, "\n")
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate sessions: %w", err)
	}
	return entries, nil
}

// Last returns the newest session for device, or nil when there is none.
func (s *Store) Last(ctx context.Context, device string) (*Entry, error) {
	entries, err := s.List(ctx, Filter{Device: device, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
