// CLAUDE:SUMMARY Persists session lifecycle events to SQLite; write failures log and never propagate to tool calls.
// Package journal records session lifecycle events (start, surface open,
// navigation, workflow runs, teardown) in SQLite. The journal is an
// audit surface, not a dependency: a failing write is logged and dropped,
// it never fails the operation that produced it.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/pilote/idgen"
)

// Schema contains the DDL for the journal tables. dbopen applies it via
// WithSchema at open time.
const Schema = `
CREATE TABLE IF NOT EXISTS session_events (
    event_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    identifier TEXT,
    details TEXT,
    success INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_session_events_session
    ON session_events(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_events_type
    ON session_events(event_type, created_at DESC);
`

// Event is one recorded session event.
type Event struct {
	EventID    string    `json:"event_id"`
	SessionID  string    `json:"session_id"`
	EventType  string    `json:"event_type"`
	Identifier string    `json:"identifier,omitempty"`
	Details    any       `json:"details,omitempty"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journal writes session events.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets a custom ID generator for event IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithLogger sets the logger for dropped writes.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// New creates a Journal backed by the given database. The caller owns the
// database handle.
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Record persists an event. Non-blocking for the caller's control flow:
// errors are logged, never propagated, so a failing journal store never
// fails a tool call.
func (j *Journal) Record(ctx context.Context, sessionID, eventType, identifier string, details any, success bool) {
	if j == nil || j.db == nil {
		return
	}

	var detailsJSON any
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO session_events (
			event_id, session_id, event_type, identifier, details, success, created_at
		) VALUES (?,?,?,?,?,?,?)`,
		j.newID(), sessionID, eventType, identifier, detailsJSON,
		boolToInt(success), time.Now().Unix())
	if err != nil {
		j.logger.Warn("journal: event write failed",
			"session_id", sessionID, "event_type", eventType, "error", err)
	}
}

// Recent returns the latest events for a session, newest first.
// limit <= 0 means 100.
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, session_id, event_type,
		       COALESCE(identifier, ''), COALESCE(details, ''), success, created_at
		FROM session_events
		WHERE session_id = ?
		ORDER BY created_at DESC, event_id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var details string
		var success int
		var createdAt int64
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.EventType,
			&e.Identifier, &details, &success, &createdAt); err != nil {
			return nil, err
		}
		if details != "" {
			var v any
			if json.Unmarshal([]byte(details), &v) == nil {
				e.Details = v
			}
		}
		e.Success = success != 0
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
