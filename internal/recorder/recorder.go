// Package recorder persists the event stream of scroll sessions to SQLite,
// so story authors can replay what their readers actually triggered.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	story_id   TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	at         TIMESTAMP NOT NULL,
	kind       TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	direction  TEXT NOT NULL,
	progress   REAL NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Event is one recorded engine event.
type Event struct {
	Seq       int
	At        time.Time
	Kind      string // stepEnter, stepExit, stepProgress, containerEnter, containerExit
	StepIndex int    // -1 for container events
	Direction string
	Progress  float64
}

// Recorder owns the event database. It is safe for concurrent use; the
// sql.DB pool does the locking.
type Recorder struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the event database at dbPath.
func Open(dbPath string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("recorder: failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: failed to connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: failed to create schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close releases the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Begin registers a new session for a story and returns its id.
func (r *Recorder) Begin(ctx context.Context, storyID string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, story_id, started_at) VALUES (?, ?, ?)`,
		id, storyID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("recorder: begin session: %w", err)
	}
	return id, nil
}

// Record appends one event to a session. Seq must increase per session;
// the primary key rejects duplicates.
func (r *Recorder) Record(ctx context.Context, sessionID string, ev Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (session_id, seq, at, kind, step_index, direction, progress)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, ev.Seq, ev.At.UTC(), ev.Kind, ev.StepIndex, ev.Direction, ev.Progress)
	if err != nil {
		return fmt.Errorf("recorder: record event: %w", err)
	}
	return nil
}

// Events returns a session's events in sequence order.
func (r *Recorder) Events(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, at, kind, step_index, direction, progress
		 FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("recorder: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Seq, &ev.At, &ev.Kind, &ev.StepIndex, &ev.Direction, &ev.Progress); err != nil {
			return nil, fmt.Errorf("recorder: scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Sessions returns the ids of all sessions recorded for a story, newest
// first.
func (r *Recorder) Sessions(ctx context.Context, storyID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE story_id = ? ORDER BY started_at DESC`, storyID)
	if err != nil {
		return nil, fmt.Errorf("recorder: query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
