package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConnState is the connectivity state machine.
type ConnState int

const (
	// StateOffline means the backend was unreachable at last contact.
	// Records accumulate in the durable queue.
	StateOffline ConnState = iota

	// StateOnline means the backend answered recently; sync rounds run.
	StateOnline
)

func (s ConnState) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

const (
	defaultSyncInterval = 30 * time.Second
	defaultMaxRetries   = 5
)

// ErrSyncInProgress is returned by Sync when a round is already running.
var ErrSyncInProgress = errors.New("offline: sync already in progress")

// ManagerOption is a functional option for configuring a [Manager].
type ManagerOption func(*Manager)

// WithSyncInterval sets the auto-sync period. Default: 30s.
func WithSyncInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

// WithMaxRetries sets how many backend rejections a record survives before
// it is marked permanently failed. Default: 5.
func WithMaxRetries(n int) ManagerOption {
	return func(m *Manager) { m.maxRetries = n }
}

// WithConflictHandler registers a callback invoked when the backend answers
// 409 for an event. The event is parked, not retried; resolution is the
// handler's (or the user's) call via [Manager.ResolveConflict].
func WithConflictHandler(fn func(Event, *ConflictError)) ManagerOption {
	return func(m *Manager) { m.onConflict = fn }
}

// Manager owns the offline queue lifecycle: recording locally, watching
// connectivity, and draining the queue to the backend. All methods are safe
// for concurrent use.
type Manager struct {
	store      *Store
	client     *Client
	interval   time.Duration
	maxRetries int
	onConflict func(Event, *ConflictError)

	mu    sync.Mutex
	state ConnState

	syncing atomic.Bool
	kick    chan struct{}
}

// NewManager constructs a Manager. It starts offline; the first successful
// ping or sync flips it online.
func NewManager(store *Store, client *Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		client:     client,
		interval:   defaultSyncInterval,
		maxRetries: defaultMaxRetries,
		kick:       make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns the current connectivity state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// MaxRetries returns the per-record retry budget.
func (m *Manager) MaxRetries() int {
	return m.maxRetries
}

// setState transitions the connectivity state machine.
func (m *Manager) setState(next ConnState) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()
	if prev != next {
		slog.Info("offline: connectivity state transition",
			"from", prev.String(), "to", next.String())
	}
}

// SetOnline feeds an external connectivity signal into the state machine
// and, when coming online, requests a sync round.
func (m *Manager) SetOnline(online bool) {
	if online {
		m.setState(StateOnline)
		m.requestSync()
	} else {
		m.setState(StateOffline)
	}
}

// StartSession creates a local session record. When online, backend
// registration is attempted immediately; otherwise the session waits in the
// queue.
func (m *Manager) StartSession(ctx context.Context, sessionType string, metadata map[string]string) (Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		Type:      sessionType,
		StartedAt: time.Now().UTC(),
		Status:    StatusPending,
		Metadata:  metadata,
	}
	if err := m.store.SaveSession(sess); err != nil {
		return Session{}, err
	}
	slog.Info("offline: session started", "session_id", sess.ID, "type", sessionType)

	if m.State() == StateOnline {
		m.requestSync()
	}
	return sess, nil
}

// EndSession stamps the session's end time locally. The ephemeral cache for
// the session is dropped; the durable record syncs as usual.
func (m *Manager) EndSession(sessionID string) error {
	return m.store.EndSession(sessionID, time.Now().UTC())
}

// RecordEvent queues one workout event durably. payload is marshaled to
// JSON; lastExercise (when non-empty) updates the session's ephemeral
// context cache. A sync round is requested when online.
func (m *Manager) RecordEvent(sessionID, kind string, payload any, transcript string, confidence float64, lastExercise string) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("offline: encoding event payload: %w", err)
	}
	ev := Event{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Kind:       kind,
		Payload:    raw,
		Transcript: transcript,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
		Status:     StatusPending,
		Priority:   eventPriority(kind),
	}
	if err := m.store.SaveEvent(ev, lastExercise); err != nil {
		return Event{}, err
	}

	if m.State() == StateOnline {
		m.requestSync()
	}
	return ev, nil
}

// eventPriority ranks events for eviction under queue pressure. Anything
// that carries or mutates workout data must survive; ambient events may be
// dropped when space runs out.
func eventPriority(kind string) string {
	switch kind {
	case "log_set", "edit_last", "undo_last":
		return PriorityHigh
	case "rest_timer", "exercise_mention":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// LastExercise exposes the ephemeral per-session context cache.
func (m *Manager) LastExercise(sessionID string) string {
	return m.store.LastExercise(sessionID)
}

// ResolveConflict settles a parked event: retry requeues it with a fresh
// retry budget, otherwise it is discarded.
func (m *Manager) ResolveConflict(eventID string, retry bool) error {
	if retry {
		slog.Info("offline: conflict resolved, requeueing event", "event_id", eventID)
		return m.store.ResetEvent(eventID)
	}
	slog.Info("offline: conflict resolved, discarding event", "event_id", eventID)
	return m.store.SetEventStatus(eventID, StatusDiscarded, 0)
}

// requestSync pokes the run loop without blocking.
func (m *Manager) requestSync() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run drives connectivity probing and periodic sync until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-m.kick:
		}

		if err := m.client.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("offline: backend unreachable", "error", err)
			m.setState(StateOffline)
			continue
		}
		m.setState(StateOnline)

		res, err := m.Sync(ctx)
		switch {
		case errors.Is(err, ErrSyncInProgress):
		case err != nil:
			slog.Warn("offline: sync round ended early", "error", err)
		default:
			if res != (Result{}) {
				slog.Info("offline: sync round finished",
					"sessions_synced", res.SessionsSynced, "events_synced", res.EventsSynced,
					"retried", res.Retried, "failed", res.Failed,
					"conflicted", res.Conflicted, "deferred", res.Deferred)
			}
		}
	}
}

// Result summarizes one sync round. Counts are per local record, so a
// collapsed wire event that carried three queued events counts as three.
type Result struct {
	// SessionsSynced and EventsSynced were accepted by the backend.
	SessionsSynced int
	EventsSynced   int

	// Retried were rejected, charged one retry, and left queued.
	Retried int

	// Failed exhausted their retry budget and will not be retried.
	Failed int

	// Conflicted hit a 409 and are parked for explicit resolution.
	Conflicted int

	// Deferred events wait on a session the backend has not accepted yet.
	Deferred int
}

// Sync drains the queue once: pending sessions first (an event is never
// transmitted before its session has a backend id), then pending events,
// prepared for the wire. Partial success is normal; whatever fails stays
// queued, and the returned Result says what happened to each record. Only
// one round runs at a time.
func (m *Manager) Sync(ctx context.Context) (Result, error) {
	if !m.syncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer m.syncing.Store(false)

	var res Result
	if err := m.syncSessions(ctx, &res); err != nil {
		return res, err
	}
	err := m.syncEvents(ctx, &res)
	return res, err
}

// syncSessions registers every pending session with the backend.
func (m *Manager) syncSessions(ctx context.Context, res *Result) error {
	sessions, err := m.store.PendingSessions()
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		backendID, err := m.client.CreateSession(ctx, sess)
		if err == nil {
			if err := m.store.BindBackendID(sess.ID, backendID); err != nil {
				return err
			}
			res.SessionsSynced++
			slog.Info("offline: session synced",
				"session_id", sess.ID, "backend_id", backendID)
			continue
		}

		var conflict *ConflictError
		var status *StatusError
		switch {
		case errors.As(err, &conflict):
			slog.Warn("offline: session conflicts with backend state",
				"session_id", sess.ID, "detail", conflict.Detail)
			if err := m.store.SetSessionStatus(sess.ID, StatusConflict, sess.Attempts); err != nil {
				return err
			}
			res.Conflicted++
		case errors.As(err, &status):
			if err := m.recordSessionRejection(sess, err, res); err != nil {
				return err
			}
		default:
			// Transport failure: the backend went away mid-round. Nothing
			// here counts against retry budgets.
			m.setState(StateOffline)
			return fmt.Errorf("offline: backend lost mid-sync: %w", err)
		}
	}
	return nil
}

// syncEvents transmits the pending queue. Events whose session has no
// backend id yet are skipped until a later round.
func (m *Manager) syncEvents(ctx context.Context, res *Result) error {
	events, err := m.store.PendingEvents()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	backendIDs := make(map[string]string)
	for _, wev := range Compress(events) {
		backendID, ok := backendIDs[wev.Event.SessionID]
		if !ok {
			sess, err := m.store.Session(wev.Event.SessionID)
			if err != nil {
				return err
			}
			backendID = sess.BackendID
			backendIDs[wev.Event.SessionID] = backendID
		}
		if backendID == "" {
			// Session not accepted yet; its events wait.
			res.Deferred += len(wev.IDs())
			continue
		}

		_, err := m.client.SendEvent(ctx, backendID, wev)
		if err == nil {
			for _, id := range wev.IDs() {
				if err := m.store.SetEventStatus(id, StatusSynced, 0); err != nil {
					return err
				}
			}
			res.EventsSynced += len(wev.IDs())
			continue
		}

		var conflict *ConflictError
		var status *StatusError
		switch {
		case errors.As(err, &conflict):
			slog.Warn("offline: event conflicts with backend state",
				"event_id", wev.Event.ID, "detail", conflict.Detail)
			for _, id := range wev.IDs() {
				if err := m.store.SetEventStatus(id, StatusConflict, wev.Event.Attempts); err != nil {
					return err
				}
			}
			res.Conflicted += len(wev.IDs())
			if m.onConflict != nil {
				m.onConflict(wev.Event, conflict)
			}
		case errors.As(err, &status):
			if err := m.recordEventRejection(wev, err, res); err != nil {
				return err
			}
		default:
			m.setState(StateOffline)
			return fmt.Errorf("offline: backend lost mid-sync: %w", err)
		}
	}
	return nil
}

// recordSessionRejection charges one rejection against a session's retry
// budget.
func (m *Manager) recordSessionRejection(sess Session, cause error, res *Result) error {
	attempts := sess.Attempts + 1
	if attempts >= m.maxRetries {
		slog.Error("offline: session permanently failed",
			"session_id", sess.ID, "attempts", attempts, "error", cause)
		res.Failed++
		return m.store.SetSessionStatus(sess.ID, StatusFailed, attempts)
	}
	slog.Warn("offline: session sync rejected, will retry",
		"session_id", sess.ID, "attempts", attempts, "error", cause)
	res.Retried++
	return m.store.SetSessionStatus(sess.ID, StatusPending, attempts)
}

// recordEventRejection charges one rejection against every event collapsed
// into the wire event.
func (m *Manager) recordEventRejection(wev WireEvent, cause error, res *Result) error {
	attempts := wev.Event.Attempts + 1
	status := StatusPending
	if attempts >= m.maxRetries {
		status = StatusFailed
		slog.Error("offline: event permanently failed",
			"event_id", wev.Event.ID, "attempts", attempts, "error", cause)
		res.Failed += len(wev.IDs())
	} else {
		slog.Warn("offline: event sync rejected, will retry",
			"event_id", wev.Event.ID, "attempts", attempts, "error", cause)
		res.Retried += len(wev.IDs())
	}
	for _, id := range wev.IDs() {
		if err := m.store.SetEventStatus(id, status, attempts); err != nil {
			return err
		}
	}
	return nil
}
