// Package database keeps a local sqlite audit trail of application attempts.
// It is strictly best-effort: a broken database never fails an attempt, it
// only logs a warning and disables itself.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akashpal/jobwright/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id TEXT PRIMARY KEY,
	job_url TEXT NOT NULL,
	domain TEXT NOT NULL,
	outcome TEXT NOT NULL,
	final_state TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	screenshot_path TEXT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	purpose TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (attempt_id) REFERENCES attempts(id)
);

CREATE INDEX IF NOT EXISTS idx_attempts_domain ON attempts(domain);
CREATE INDEX IF NOT EXISTS idx_ai_calls_attempt ON ai_calls(attempt_id);
`

// AttemptRow is one finished attempt.
type AttemptRow struct {
	ID             string
	JobURL         string
	Domain         string
	Outcome        string // success, failure
	FinalState     string
	Retries        int
	Error          string
	ScreenshotPath string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// DB wraps the sqlite handle. A nil *DB is valid and drops every write.
type DB struct {
	conn *sql.DB
}

// Open creates or opens the audit database and applies the schema. Any error
// is logged and a nil DB returned so callers can proceed without auditing.
func Open(path string) *DB {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logging.Warn("Audit database directory unavailable: %v", err)
		return nil
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		logging.Warn("Audit database unavailable at %s: %v", path, err)
		return nil
	}
	if _, err := conn.Exec(schema); err != nil {
		logging.Warn("Audit database schema failed: %v", err)
		conn.Close()
		return nil
	}
	return &DB{conn: conn}
}

// RecordAttempt inserts one finished attempt.
func (d *DB) RecordAttempt(row AttemptRow) {
	if d == nil || d.conn == nil {
		return
	}
	_, err := d.conn.Exec(`
		INSERT INTO attempts (id, job_url, domain, outcome, final_state, retries, error, screenshot_path, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.JobURL, row.Domain, row.Outcome, row.FinalState,
		row.Retries, row.Error, row.ScreenshotPath, row.StartedAt, row.FinishedAt,
	)
	if err != nil {
		logging.Warn("Failed to record attempt %s: %v", row.ID, err)
	}
}

// RecordAICall inserts one AI invocation made during an attempt.
func (d *DB) RecordAICall(attemptID, provider, purpose string, succeeded bool) {
	if d == nil || d.conn == nil {
		return
	}
	ok := 0
	if succeeded {
		ok = 1
	}
	_, err := d.conn.Exec(`
		INSERT INTO ai_calls (attempt_id, provider, purpose, succeeded, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		attemptID, provider, purpose, ok, time.Now().UTC(),
	)
	if err != nil {
		logging.Warn("Failed to record AI call for attempt %s: %v", attemptID, err)
	}
}

// RecentAttempts returns up to limit attempts for a domain, newest first. An
// empty domain matches everything.
func (d *DB) RecentAttempts(domain string, limit int) ([]AttemptRow, error) {
	if d == nil || d.conn == nil {
		return nil, nil
	}
	query := `SELECT id, job_url, domain, outcome, final_state, retries, error, screenshot_path, started_at, finished_at
		FROM attempts`
	args := []interface{}{}
	if domain != "" {
		query += ` WHERE domain = ?`
		args = append(args, domain)
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRow
	for rows.Next() {
		var r AttemptRow
		if err := rows.Scan(&r.ID, &r.JobURL, &r.Domain, &r.Outcome, &r.FinalState,
			&r.Retries, &r.Error, &r.ScreenshotPath, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the sqlite handle.
func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
