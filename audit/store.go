package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store persists audit events in an append-only SQLite table. There are no
// update or delete operations; rows are totally ordered by the
// auto-increment primary key.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	data       TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);
`

// OpenStore opens (creating if necessary) the audit database at path.
// Pass ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("audit: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open store: %w", err)
	}
	// Single writer; the sink serializes inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert appends one event and records its assigned id.
func (st *Store) Insert(ev *Event) error {
	var data any
	if len(ev.Data) > 0 {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("audit: encode data: %w", err)
		}
		data = string(payload)
	}

	res, err := st.db.Exec(
		`INSERT INTO audit_events (run_id, event_type, severity, message, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Type, ev.Severity, ev.Message, data, ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

// EventsForRun returns the events recorded for runID ordered by id.
func (st *Store) EventsForRun(runID string) ([]Event, error) {
	rows, err := st.db.Query(
		`SELECT id, run_id, event_type, severity, message, data, created_at FROM audit_events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var data sql.NullString
		var created string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Type, &ev.Severity, &ev.Message, &data, &created); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if data.Valid && data.String != "" {
			_ = json.Unmarshal([]byte(data.String), &ev.Data)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			ev.CreatedAt = t
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountForRun returns the number of events recorded for runID, optionally
// filtered by event type.
func (st *Store) CountForRun(runID, eventType string) (int, error) {
	var n int
	var err error
	if eventType == "" {
		err = st.db.QueryRow(`SELECT COUNT(*) FROM audit_events WHERE run_id = ?`, runID).Scan(&n)
	} else {
		err = st.db.QueryRow(`SELECT COUNT(*) FROM audit_events WHERE run_id = ? AND event_type = ?`, runID, eventType).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (st *Store) Close() error {
	return st.db.Close()
}
