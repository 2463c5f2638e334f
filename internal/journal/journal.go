// Package journal persists every dispatched fault in SQLite so incidents
// survive restarts and power cycles after a kill.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voxel8/interlockd/internal/safety"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS faults (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	source     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	severity   TEXT NOT NULL,
	action     TEXT NOT NULL,
	message    TEXT NOT NULL,
	detail     TEXT,
	lines_json TEXT,
	error      TEXT
);

CREATE INDEX IF NOT EXISTS faults_created_at ON faults(created_at);
`

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one journaled fault.
type Entry struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Kind     string    `json:"kind"`
	Severity string    `json:"severity"`
	Action   string    `json:"action"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
	Lines    []string  `json:"lines,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Journal is a SQLite-backed fault log.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path and runs migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer: the control loop. Readers come from the HTTP server.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a dispatch outcome under a new incident id.
func (j *Journal) Record(ts time.Time, out safety.Outcome) (Entry, error) {
	e := Entry{
		ID:       uuid.New().String(),
		Time:     ts.UTC(),
		Source:   string(out.Fault.Source),
		Kind:     string(out.Fault.Kind),
		Severity: out.Fault.Severity.String(),
		Action:   string(out.Action),
		Message:  out.Fault.Message,
		Detail:   out.Fault.Detail,
		Lines:    out.Lines,
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}

	linesJSON, err := json.Marshal(e.Lines)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal lines: %w", err)
	}

	_, err = j.db.Exec(
		`INSERT INTO faults (id, created_at, source, kind, severity, action, message, detail, lines_json, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.Format(timeLayout), e.Source, e.Kind, e.Severity, e.Action,
		e.Message, e.Detail, string(linesJSON), e.Error,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert fault: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT id, created_at, source, kind, severity, action, message, detail, lines_json, error
		 FROM faults ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query faults: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt string
			detail    sql.NullString
			linesJSON sql.NullString
			errText   sql.NullString
		)
		if err := rows.Scan(&e.ID, &createdAt, &e.Source, &e.Kind, &e.Severity, &e.Action,
			&e.Message, &detail, &linesJSON, &errText); err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		e.Time, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		e.Detail = detail.String
		e.Error = errText.String
		if linesJSON.Valid && linesJSON.String != "" {
			if err := json.Unmarshal([]byte(linesJSON.String), &e.Lines); err != nil {
				return nil, fmt.Errorf("unmarshal lines: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of journaled faults.
func (j *Journal) Count() (int, error) {
	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM faults`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count faults: %w", err)
	}
	return n, nil
}
