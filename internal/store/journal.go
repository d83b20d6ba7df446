// Package store persists the system event stream of goaldeck sessions in
// SQLite so a session's graph and UI state can be rebuilt by replay.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"goaldeck/internal/events"
	"goaldeck/internal/logging"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal is closed")

// Record is one journaled system event.
type Record struct {
	ID         string
	SessionID  string
	Seq        int64
	Kind       events.SystemKind
	Event      events.SystemEvent
	RecordedAt time.Time
}

// SessionSummary describes one journaled session.
type SessionSummary struct {
	SessionID string
	Events    int
	FirstAt   time.Time
	LastAt    time.Time
}

// Journal is an append-only SQLite log of system events, ordered per session
// by a monotonically increasing sequence number.
type Journal struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	closed bool
	now    func() time.Time
}

// slowAppendThreshold is the append latency above which a warning is logged.
const slowAppendThreshold = 100 * time.Millisecond

// OpenJournal opens (creating if needed) the journal database at path.
// Use ":memory:" for an in-memory journal.
func OpenJournal(path string) (*Journal, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenJournal")
	defer timer.Stop()

	logging.Store("Opening event journal at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	j := &Journal{db: db, dbPath: path, now: time.Now}
	if err := j.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS system_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		UNIQUE(session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_system_events_session ON system_events(session_id, seq);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create system_events table: %w", err)
	}
	return nil
}

// Append records ev as the next event of sessionID and returns its sequence
// number.
func (j *Journal) Append(ctx context.Context, sessionID string, ev events.SystemEvent) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Append "+string(ev.Kind()))
	defer timer.StopWithThreshold(slowAppendThreshold)

	payload, err := events.Encode(ev)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM system_events WHERE session_id = ?`,
		sessionID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO system_events (id, session_id, seq, kind, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, seq, string(ev.Kind()), string(payload), j.now().UTC().UnixNano(),
	); err != nil {
		logging.StoreError("Failed to append %s for session %s: %v", ev.Kind(), sessionID, err)
		return 0, fmt.Errorf("failed to append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}

	logging.StoreDebug("Journaled %s session=%s seq=%d", ev.Kind(), sessionID, seq)
	return seq, nil
}

// Replay calls fn for every event of sessionID in sequence order. It stops
// at the first error fn returns.
func (j *Journal) Replay(ctx context.Context, sessionID string, fn func(Record) error) error {
	timer := logging.StartTimer(logging.CategoryStore, "Replay")
	defer timer.Stop()

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, seq, kind, payload, recorded_at
		 FROM system_events
		 WHERE session_id = ?
		 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to query session %s: %w", sessionID, err)
	}

	// Drain rows before invoking callbacks so fn may use the journal.
	var records []Record
	for rows.Next() {
		var (
			r       Record
			kind    string
			payload string
			nanos   int64
		)
		if err := rows.Scan(&r.ID, &r.Seq, &kind, &payload, &nanos); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan event: %w", err)
		}
		ev, err := events.DecodeSystem([]byte(payload))
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to decode event seq=%d: %w", r.Seq, err)
		}
		r.SessionID = sessionID
		r.Kind = events.SystemKind(kind)
		r.Event = ev
		r.RecordedAt = time.Unix(0, nanos).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read events: %w", err)
	}
	rows.Close()

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	logging.StoreDebug("Replayed %d events for session %s", len(records), sessionID)
	return nil
}

// Sessions lists journaled sessions, most recently active first.
func (j *Journal) Sessions(ctx context.Context) ([]SessionSummary, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MIN(recorded_at), MAX(recorded_at)
		 FROM system_events
		 GROUP BY session_id
		 ORDER BY MAX(recorded_at) DESC, session_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s           SessionSummary
			first, last int64
		)
		if err := rows.Scan(&s.SessionID, &s.Events, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.FirstAt = time.Unix(0, first).UTC()
		s.LastAt = time.Unix(0, last).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of events journaled for sessionID.
func (j *Journal) Count(ctx context.Context, sessionID string) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return 0, ErrClosed
	}

	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM system_events WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Path returns the database path the journal was opened with.
func (j *Journal) Path() string {
	return j.dbPath
}

// Close closes the database. Further calls return ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
