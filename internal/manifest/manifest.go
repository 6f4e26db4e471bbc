// Package manifest records, in SQLite, which files each build wrote so later
// builds can sweep stale ones.
package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS outputs (
	path       TEXT PRIMARY KEY,
	route      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	build_id   TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_outputs_build ON outputs(build_id);

CREATE TABLE IF NOT EXISTS builds (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	outcome     TEXT NOT NULL,
	pages       INTEGER NOT NULL DEFAULT 0,
	written     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);
`

// Store defines the manifest operations the build depends on.
type Store interface {
	Record(buildID string, entries []Entry) error
	Stale(buildID string) ([]string, error)
	Delete(paths []string) error
	Entries() ([]Entry, error)
	RecordBuild(b Build) error
	LastBuild() (*Build, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Entry is one file the build wrote.
type Entry struct {
	Path      string
	Route     string
	Checksum  string
	BuildID   string
	UpdatedAt time.Time
}

// Build summarises one build run.
type Build struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	Pages      int
	Written    int
	Error      string
}

// DB wraps a sql.DB with manifest operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the manifest database and applies the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("manifest: mkdir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record upserts entries under buildID in one transaction.
func (db *DB) Record(buildID string, entries []Entry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`
		INSERT INTO outputs (path, route, checksum, build_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			route      = excluded.route,
			checksum   = excluded.checksum,
			build_id   = excluded.build_id,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("manifest: prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		ts := e.UpdatedAt
		if ts.IsZero() {
			ts = now
		}
		if _, err := stmt.Exec(e.Path, e.Route, e.Checksum, buildID, ts); err != nil {
			return fmt.Errorf("manifest: upsert %s: %w", e.Path, err)
		}
	}
	return tx.Commit()
}

// Stale returns every recorded path that buildID did not produce.
func (db *DB) Stale(buildID string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT path FROM outputs WHERE build_id != ? ORDER BY path`, buildID)
	if err != nil {
		return nil, fmt.Errorf("manifest: stale: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete forgets paths.
func (db *DB) Delete(paths []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range paths {
		if _, err := tx.Exec(`DELETE FROM outputs WHERE path = ?`, p); err != nil {
			return fmt.Errorf("manifest: delete %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// Entries returns every recorded output ordered by path.
func (db *DB) Entries() ([]Entry, error) {
	rows, err := db.conn.Query(`SELECT path, route, checksum, build_id, updated_at FROM outputs ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("manifest: entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.Route, &e.Checksum, &e.BuildID, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordBuild stores the summary of a finished build.
func (db *DB) RecordBuild(b Build) error {
	_, err := db.conn.Exec(`
		INSERT INTO builds (id, started_at, finished_at, outcome, pages, written, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.StartedAt.UTC(), b.FinishedAt.UTC(), b.Outcome, b.Pages, b.Written, b.Error)
	if err != nil {
		return fmt.Errorf("manifest: record build: %w", err)
	}
	return nil
}

// LastBuild returns the most recently finished build, or nil if none.
func (db *DB) LastBuild() (*Build, error) {
	var b Build
	err := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, outcome, pages, written, error
		FROM builds ORDER BY finished_at DESC, rowid DESC LIMIT 1
	`).Scan(&b.ID, &b.StartedAt, &b.FinishedAt, &b.Outcome, &b.Pages, &b.Written, &b.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: last build: %w", err)
	}
	return &b, nil
}
