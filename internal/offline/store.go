// Package offline keeps workout data safe when the backend is not
// reachable.
//
// Everything the user logs lands in a local SQLite queue first and is
// synced to the backend opportunistically: the durable queue survives
// restarts, while a small in-memory cache of recent per-session activity
// (used for conversational context) is written back to the database on a
// clean shutdown. The [Manager] owns the online/offline state machine and
// the periodic sync loop; the [Store] owns persistence; the [Client] owns
// the wire.
package offline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the sync lifecycle of a queued session or event.
type Status string

const (
	// StatusPending means not yet accepted by the backend.
	StatusPending Status = "pending"

	// StatusSynced means the backend accepted the record.
	StatusSynced Status = "synced"

	// StatusFailed means the record exhausted its retry budget and will not
	// be retried automatically.
	StatusFailed Status = "failed"

	// StatusConflict means the backend answered 409; the record is parked
	// until the conflict is resolved explicitly.
	StatusConflict Status = "conflict"

	// StatusDiscarded means a conflicted record was resolved by dropping it.
	StatusDiscarded Status = "discarded"
)

// Event priorities control eviction when the queue is capped. High-priority
// events are never evicted.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Session is one locally tracked workout session.
type Session struct {
	ID        string
	Type      string
	StartedAt time.Time
	EndedAt   *time.Time
	BackendID string
	Status    Status
	Attempts  int
	Metadata  map[string]string
}

// Event is one queued workout event. Payload is the JSON-encoded intent
// parameters (including alternatives, which are stripped before transmit).
type Event struct {
	ID         string
	SessionID  string
	Kind       string
	Payload    json.RawMessage
	Transcript string
	Confidence float64
	CreatedAt  time.Time
	Attempts   int
	Status     Status
	Priority   string
}

// Store is the durable offline queue backed by SQLite, plus an in-memory
// per-session cache that is written back on Close. All methods are safe
// for concurrent use; SQLite serializes writers underneath.
type Store struct {
	db        *sql.DB
	maxEvents int

	mu    sync.Mutex
	cache map[string]*sessionCache
}

// StoreOption configures OpenStore.
type StoreOption func(*Store)

// WithMaxEvents caps the number of pending events kept in the queue.
// When the cap is exceeded the oldest evictable event is dropped: low
// priority first, then normal. High-priority events are always retained,
// so a queue full of them may exceed the cap. Zero means unbounded.
func WithMaxEvents(n int) StoreOption {
	return func(s *Store) { s.maxEvents = n }
}

// sessionCache is the in-memory working set for one session.
type sessionCache struct {
	lastExercise string
	eventCount   int
}

// OpenStore opens (or creates) the offline database at dir/voxlift.db.
func OpenStore(dir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("offline: creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "voxlift.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("offline: opening db: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at   TIMESTAMP,
			backend_id    TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'pending',
			attempts      INTEGER NOT NULL DEFAULT 0,
			metadata      TEXT NOT NULL DEFAULT '{}',
			last_exercise TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			attempts   INTEGER NOT NULL DEFAULT 0,
			status     TEXT NOT NULL DEFAULT 'pending',
			priority   TEXT NOT NULL DEFAULT 'normal'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("offline: creating schema: %w", err)
		}
	}

	s := &Store{db: db, cache: make(map[string]*sessionCache)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SaveSession inserts or replaces a session record.
func (s *Store) SaveSession(sess Session) error {
	meta, err := json.Marshal(sess.Metadata)
	if err != nil {
		return fmt.Errorf("offline: encoding session metadata: %w", err)
	}
	if sess.Status == "" {
		sess.Status = StatusPending
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions
			(id, type, started_at, ended_at, backend_id, status, attempts, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Type, sess.StartedAt, sess.EndedAt,
		sess.BackendID, string(sess.Status), sess.Attempts, string(meta),
	)
	if err != nil {
		return fmt.Errorf("offline: saving session: %w", err)
	}

	s.mu.Lock()
	if _, ok := s.cache[sess.ID]; !ok {
		s.cache[sess.ID] = &sessionCache{}
	}
	s.mu.Unlock()
	return nil
}

// SaveEvent appends an event to the durable queue and updates the session's
// ephemeral cache.
func (s *Store) SaveEvent(ev Event, lastExercise string) error {
	if ev.Status == "" {
		ev.Status = StatusPending
	}
	if ev.Priority == "" {
		ev.Priority = PriorityNormal
	}
	// Events are stored compressed: alternative readings never reach disk
	// and long repeated-character runs in the transcript are folded away.
	// Decompression happens just before transmission.
	ev.Payload = StripAlternatives(ev.Payload)
	ev.Transcript = CompressTranscript(ev.Transcript)
	_, err := s.db.Exec(
		`INSERT INTO events
			(id, session_id, kind, payload, transcript, confidence, created_at, attempts, status, priority)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.Kind, string(ev.Payload),
		ev.Transcript, ev.Confidence, ev.CreatedAt, ev.Attempts, string(ev.Status), ev.Priority,
	)
	if err != nil {
		return fmt.Errorf("offline: saving event: %w", err)
	}
	if err := s.evictOverflow(); err != nil {
		return err
	}

	s.mu.Lock()
	sc, ok := s.cache[ev.SessionID]
	if !ok {
		sc = &sessionCache{}
		s.cache[ev.SessionID] = sc
	}
	sc.eventCount++
	if lastExercise != "" {
		sc.lastExercise = lastExercise
	}
	s.mu.Unlock()
	return nil
}

// evictOverflow drops the oldest evictable pending events until the queue
// is back under the cap. High-priority events are never dropped.
func (s *Store) evictOverflow() error {
	if s.maxEvents <= 0 {
		return nil
	}
	var pending int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE status = ?`, string(StatusPending),
	).Scan(&pending); err != nil {
		return fmt.Errorf("offline: counting pending events: %w", err)
	}
	over := pending - s.maxEvents
	if over <= 0 {
		return nil
	}
	res, err := s.db.Exec(
		`DELETE FROM events WHERE id IN (
			SELECT id FROM events
			WHERE status = ? AND priority != ?
			ORDER BY CASE priority WHEN ? THEN 0 ELSE 1 END, rowid
			LIMIT ?)`,
		string(StatusPending), PriorityHigh, PriorityLow, over)
	if err != nil {
		return fmt.Errorf("offline: evicting overflow events: %w", err)
	}
	if dropped, _ := res.RowsAffected(); dropped > 0 {
		slog.Warn("offline: queue over capacity, evicted oldest events",
			"dropped", dropped, "max_events", s.maxEvents)
	}
	return nil
}

// LastExercise returns the most recent exercise recorded for the session.
// Served from the in-memory cache when the session is warm; otherwise the
// value flushed by the last clean shutdown is read back from the database.
func (s *Store) LastExercise(sessionID string) string {
	s.mu.Lock()
	if sc, ok := s.cache[sessionID]; ok {
		last := sc.lastExercise
		s.mu.Unlock()
		return last
	}
	s.mu.Unlock()

	var last string
	err := s.db.QueryRow(
		`SELECT last_exercise FROM sessions WHERE id = ?`, sessionID,
	).Scan(&last)
	if err != nil {
		return ""
	}
	if last != "" {
		s.mu.Lock()
		s.cache[sessionID] = &sessionCache{lastExercise: last}
		s.mu.Unlock()
	}
	return last
}

// Session returns one session by local id.
func (s *Store) Session(id string) (Session, error) {
	row := s.db.QueryRow(
		`SELECT id, type, started_at, ended_at, backend_id, status, attempts, metadata
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// PendingSessions returns sessions awaiting backend acceptance, oldest
// first.
func (s *Store) PendingSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, type, started_at, ended_at, backend_id, status, attempts, metadata
		 FROM sessions WHERE status = ? ORDER BY started_at`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("offline: listing pending sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// PendingEvents returns queued events in arrival order.
func (s *Store) PendingEvents() ([]Event, error) {
	return s.eventsByStatus(StatusPending)
}

// ConflictedEvents returns events parked on a backend conflict.
func (s *Store) ConflictedEvents() ([]Event, error) {
	return s.eventsByStatus(StatusConflict)
}

func (s *Store) eventsByStatus(status Status) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, payload, transcript, confidence, created_at, attempts, status, priority
		 FROM events WHERE status = ? ORDER BY rowid`, string(status))
	if err != nil {
		return nil, fmt.Errorf("offline: listing %s events: %w", status, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var payload, st string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Kind, &payload,
			&ev.Transcript, &ev.Confidence, &ev.CreatedAt, &ev.Attempts, &st, &ev.Priority); err != nil {
			return nil, fmt.Errorf("offline: scanning event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		ev.Status = Status(st)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// BindBackendID records the backend's id for a locally created session and
// marks it synced.
func (s *Store) BindBackendID(sessionID, backendID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET backend_id = ?, status = ? WHERE id = ?`,
		backendID, string(StatusSynced), sessionID)
	if err != nil {
		return fmt.Errorf("offline: binding backend id: %w", err)
	}
	return nil
}

// SetSessionStatus updates a session's status and attempt count.
func (s *Store) SetSessionStatus(sessionID string, status Status, attempts int) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, attempts = ? WHERE id = ?`,
		string(status), attempts, sessionID)
	if err != nil {
		return fmt.Errorf("offline: updating session status: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time and drops its ephemeral cache.
func (s *Store) EndSession(sessionID string, endedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, endedAt, sessionID)
	if err != nil {
		return fmt.Errorf("offline: ending session: %w", err)
	}
	s.mu.Lock()
	delete(s.cache, sessionID)
	s.mu.Unlock()
	return nil
}

// SetEventStatus updates one event's status and attempt count.
func (s *Store) SetEventStatus(eventID string, status Status, attempts int) error {
	_, err := s.db.Exec(
		`UPDATE events SET status = ?, attempts = ? WHERE id = ?`,
		string(status), attempts, eventID)
	if err != nil {
		return fmt.Errorf("offline: updating event status: %w", err)
	}
	return nil
}

// ResetEvent returns a parked event to the pending queue with a fresh retry
// budget.
func (s *Store) ResetEvent(eventID string) error {
	return s.SetEventStatus(eventID, StatusPending, 0)
}

// QueueDepth reports how many sessions and events are awaiting sync.
func (s *Store) QueueDepth() (sessions, events int, err error) {
	if err = s.db.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE status = ?`, string(StatusPending),
	).Scan(&sessions); err != nil {
		return 0, 0, fmt.Errorf("offline: counting pending sessions: %w", err)
	}
	if err = s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE status = ?`, string(StatusPending),
	).Scan(&events); err != nil {
		return 0, 0, fmt.Errorf("offline: counting pending events: %w", err)
	}
	return sessions, events, nil
}

// RetryBacklog reports the retry attempts accumulated across everything
// still pending, sessions and events combined.
func (s *Store) RetryBacklog() (int, error) {
	var sessions, events int
	if err := s.db.QueryRow(
		`SELECT COALESCE(SUM(attempts), 0) FROM sessions WHERE status = ?`, string(StatusPending),
	).Scan(&sessions); err != nil {
		return 0, fmt.Errorf("offline: summing session retries: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT COALESCE(SUM(attempts), 0) FROM events WHERE status = ?`, string(StatusPending),
	).Scan(&events); err != nil {
		return 0, fmt.Errorf("offline: summing event retries: %w", err)
	}
	return sessions + events, nil
}

// Close writes the in-memory session context back to the database and
// closes it. A crash skips the flush; only the conversational context is
// lost, the queue itself is already durable.
func (s *Store) Close() error {
	s.mu.Lock()
	cache := s.cache
	s.cache = make(map[string]*sessionCache)
	s.mu.Unlock()

	var errs []error
	for id, sc := range cache {
		if sc.lastExercise == "" {
			continue
		}
		if _, err := s.db.Exec(
			`UPDATE sessions SET last_exercise = ? WHERE id = ?`,
			sc.lastExercise, id); err != nil {
			errs = append(errs, fmt.Errorf("offline: flushing session %s: %w", id, err))
		}
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var endedAt sql.NullTime
	var status, meta string
	err := row.Scan(&sess.ID, &sess.Type, &sess.StartedAt, &endedAt,
		&sess.BackendID, &status, &sess.Attempts, &meta)
	if err != nil {
		return Session{}, fmt.Errorf("offline: scanning session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	sess.Status = Status(status)
	if err := json.Unmarshal([]byte(meta), &sess.Metadata); err != nil {
		return Session{}, fmt.Errorf("offline: decoding session metadata: %w", err)
	}
	return sess, nil
}
