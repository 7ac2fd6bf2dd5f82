// Package audit records lock session outcomes in a local SQLite
// database. Only metadata is stored: timestamps, attempt counts and
// outcomes. Typed input never touches the store.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the audit trail.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at  INTEGER NOT NULL,
    ended_at    INTEGER,
    origin      TEXT NOT NULL,
    outcome     TEXT,
    attempts    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
`

// Outcome labels written to the sessions table.
const (
	OutcomePassword = "password"
	OutcomeOverride = "override"
	OutcomeAborted  = "aborted"
)

// Origin labels describe what initiated a lock.
const (
	OriginManual = "manual"
	OriginFlag   = "flag"
	OriginLogind = "logind"
)

// Session is one recorded lock session. EndedAt is zero while the
// session is still open.
type Session struct {
	ID        int64
	StartedAt int64
	EndedAt   int64
	Origin    string
	Outcome   string
	Attempts  int64
}

// Store wraps the SQLite audit database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the audit database at the given path and runs
// migrations. The parent directory is created mode 0700 since the
// trail reveals when the workstation was locked.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Begin records the start of a lock session and returns its ID.
func (s *Store) Begin(startedAt int64, origin string) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO sessions (started_at, origin) VALUES (?, ?)`,
		startedAt, origin,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return result.LastInsertId()
}

// End records how a session finished.
func (s *Store) End(id, endedAt int64, outcome string, attempts int) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, outcome = ?, attempts = ? WHERE id = ?`,
		endedAt, outcome, attempts, id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// Recent returns the most recent sessions, newest first.
func (s *Store) Recent(limit int) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, origin, outcome, attempts
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var endedAt sql.NullInt64
		var outcome sql.NullString
		if err := rows.Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.Origin, &outcome, &sess.Attempts); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.EndedAt = endedAt.Int64
		sess.Outcome = outcome.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
