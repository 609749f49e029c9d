// Package store persists profile datasets in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/klauern/padsync/internal/logging"
)

// ErrNotFound is returned when a profile does not exist.
var ErrNotFound = errors.New("profile not found")

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	grid_rows         INTEGER NOT NULL DEFAULT 0,
	grid_columns      INTEGER NOT NULL DEFAULT 0,
	master_volume     REAL NOT NULL DEFAULT 1,
	tags              TEXT NOT NULL DEFAULT '[]',
	created_at        TEXT NOT NULL,
	modified_at       TEXT NOT NULL,
	field_modified_at TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS pad_configurations (
	profile_id        TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	page_index        INTEGER NOT NULL,
	pad_index         INTEGER NOT NULL,
	position          INTEGER NOT NULL DEFAULT 0,
	name              TEXT NOT NULL DEFAULT '',
	color             TEXT NOT NULL DEFAULT '',
	audio_file_ids    TEXT NOT NULL DEFAULT '[]',
	volume            REAL NOT NULL DEFAULT 1,
	fade_in_ms        INTEGER NOT NULL DEFAULT 0,
	fade_out_ms       INTEGER NOT NULL DEFAULT 0,
	playback_mode     TEXT NOT NULL DEFAULT '',
	shortcut          TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	modified_at       TEXT NOT NULL,
	field_modified_at TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (profile_id, page_index, pad_index)
);

CREATE TABLE IF NOT EXISTS page_metadata (
	profile_id        TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	page_index        INTEGER NOT NULL,
	position          INTEGER NOT NULL DEFAULT 0,
	name              TEXT NOT NULL DEFAULT '',
	color             TEXT NOT NULL DEFAULT '',
	hidden            INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	modified_at       TEXT NOT NULL,
	field_modified_at TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (profile_id, page_index)
);

CREATE TABLE IF NOT EXISTS audio_files (
	profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	id         INTEGER NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	mime_type  TEXT NOT NULL DEFAULT '',
	sha256     TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (profile_id, id)
);

CREATE TABLE IF NOT EXISTS sync_state (
	profile_id     TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
	last_sync      TEXT NOT NULL DEFAULT '',
	remote_file_id TEXT NOT NULL DEFAULT '',
	resume_after   TEXT NOT NULL DEFAULT ''
);
`

// Store is a SQLite-backed local dataset store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path. The database is opened with
// WAL journaling, foreign keys enforced and a busy timeout.
func Open(path string) (*Store, error) {
	// #nosec G301 - database directory needs to be accessible by the user
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Debug("opened local store", logging.Path(path))
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SetClock overrides the time source used to stamp local edits.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// WithTx runs fn in a transaction, rolling back if it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
