// Package history persists update attempts and the in-flight staged update
// in a SQLite database under the data directory. It is the only part of the
// updater that survives process boundaries besides the files themselves.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, WAL-friendly
)

// DefaultFileName is the database file name under the data directory.
const DefaultFileName = "history.db"

// Attempt is one recorded update attempt.
type Attempt struct {
	ID          int64
	StartedAt   time.Time
	FromVersion string
	ToVersion   string
	// Outcome is a short token: success, rolled-back, rollback-failed,
	// wait-timeout, up-to-date, declined, skipped, cancelled, deferred, error.
	Outcome string
	// Detail carries the error message for failed attempts.
	Detail string
}

// Pending describes a staged update handed to the replacement agent. The row
// is read back on the next launch and correlated with the agent result.
type Pending struct {
	StagedDir   string
	FromVersion string
	ToVersion   string
	StagedAt    time.Time
}

// Store reads and writes update history. Connections open per operation.
type Store struct {
	dbPath string
	dsn    string
}

// Open prepares the store at dbPath, creating the parent directory and the
// schema as needed.
func Open(dbPath string) (*Store, error) {
	trimmed := strings.TrimSpace(dbPath)
	if trimmed == "" {
		return nil, fmt.Errorf("history store requires a database path")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	s := &Store{dbPath: trimmed, dsn: buildHistoryDSN(trimmed)}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// buildHistoryDSN creates a read-write WAL DSN for the given path.
func buildHistoryDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Set("mode", "rwc")
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "3000")
	q.Set("_foreign_keys", "on")
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Store) openDB(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	return db, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	db, err := s.openDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS update_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			from_version TEXT NOT NULL,
			to_version TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS pending_update (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			staged_dir TEXT NOT NULL,
			from_version TEXT NOT NULL DEFAULT '',
			to_version TEXT NOT NULL,
			staged_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// RecordAttempt appends an attempt row.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	db, err := s.openDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	startedAt := a.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO update_attempts (started_at, from_version, to_version, outcome, detail)
		VALUES (?, ?, ?, ?, ?)
	`, startedAt.UTC().Format(time.RFC3339), a.FromVersion, a.ToVersion, a.Outcome, a.Detail)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns up to limit attempts, newest first.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	db, err := s.openDB(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT id, started_at, from_version, to_version, outcome, detail
		FROM update_attempts
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var startedAt string
		if err := rows.Scan(&a.ID, &startedAt, &a.FromVersion, &a.ToVersion, &a.Outcome, &a.Detail); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339, startedAt); parseErr == nil {
			a.StartedAt = ts
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// SetPending records the staged update about to be installed, replacing any
// previous row.
func (s *Store) SetPending(ctx context.Context, p Pending) error {
	db, err := s.openDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	stagedAt := p.StagedAt
	if stagedAt.IsZero() {
		stagedAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO pending_update (id, staged_dir, from_version, to_version, staged_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			staged_dir = excluded.staged_dir,
			from_version = excluded.from_version,
			to_version = excluded.to_version,
			staged_at = excluded.staged_at
	`, p.StagedDir, p.FromVersion, p.ToVersion, stagedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert pending update: %w", err)
	}
	return nil
}

// TakePending returns the pending update and clears it, or nil when none is
// recorded.
func (s *Store) TakePending(ctx context.Context) (*Pending, error) {
	db, err := s.openDB(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = db.Close()
	}()

	var p Pending
	var stagedAt string
	err = db.QueryRowContext(ctx, `
		SELECT staged_dir, from_version, to_version, staged_at FROM pending_update WHERE id = 1
	`).Scan(&p.StagedDir, &p.FromVersion, &p.ToVersion, &stagedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pending update: %w", err)
	}
	if ts, parseErr := time.Parse(time.RFC3339, stagedAt); parseErr == nil {
		p.StagedAt = ts
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM pending_update WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("clear pending update: %w", err)
	}
	return &p, nil
}
