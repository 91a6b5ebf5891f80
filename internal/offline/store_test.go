package offline_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voxlift/voxlift/internal/offline"
)

func openStore(t *testing.T, dir string) *offline.Store {
	t.Helper()
	store, err := offline.OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_QueueSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := openStore(t, dir)

	sess := offline.Session{
		ID:        "s1",
		Type:      "workout",
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Metadata:  map[string]string{"source": "voice"},
	}
	if err := store.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	ev := offline.Event{
		ID:         "e1",
		SessionID:  "s1",
		Kind:       "log_set",
		Payload:    json.RawMessage(`{"reps":10}`),
		Transcript: "bench press 10 reps",
		Confidence: 0.9,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.SaveEvent(ev, "Bench Press"); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	if got := store.LastExercise("s1"); got != "Bench Press" {
		t.Errorf("LastExercise = %q, want Bench Press", got)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The durable queue survives, and the clean Close flushed the
	// conversational context alongside it.
	reopened := openStore(t, dir)
	sessions, err := reopened.PendingSessions()
	if err != nil {
		t.Fatalf("PendingSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" || sessions[0].Metadata["source"] != "voice" {
		t.Fatalf("sessions after reopen = %+v", sessions)
	}
	events, err := reopened.PendingEvents()
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" || events[0].Transcript != "bench press 10 reps" {
		t.Fatalf("events after reopen = %+v", events)
	}
	if got := reopened.LastExercise("s1"); got != "Bench Press" {
		t.Errorf("LastExercise after reopen = %q, want flushed Bench Press", got)
	}
}

func TestStore_CompressesEventsAtRest(t *testing.T) {
	t.Parallel()

	store := openStore(t, t.TempDir())
	if err := store.SaveSession(offline.Session{ID: "s1", Type: "workout", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	spoken := "gooooooooooooooooal ten reps"
	ev := offline.Event{
		ID: "e1", SessionID: "s1", Kind: "log_set",
		Payload:    json.RawMessage(`{"reps":10,"alternatives":[{"exercise":"Goal Raise"}]}`),
		Transcript: spoken,
		CreatedAt:  time.Now(),
	}
	if err := store.SaveEvent(ev, ""); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	pending, err := store.PendingEvents()
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %+v, want one event", pending)
	}

	// The durable row holds the compressed form.
	var payload map[string]any
	if err := json.Unmarshal(pending[0].Payload, &payload); err != nil {
		t.Fatalf("stored payload is not valid JSON: %v", err)
	}
	if _, ok := payload["alternatives"]; ok {
		t.Error("alternatives reached durable storage")
	}
	if got := pending[0].Transcript; got != offline.CompressTranscript(spoken) {
		t.Errorf("stored transcript = %q, want compressed form", got)
	}

	// The wire form restores what was said.
	wire := offline.Compress(pending)
	if wire[0].Event.Transcript != spoken {
		t.Errorf("wire transcript = %q, want %q", wire[0].Event.Transcript, spoken)
	}
}

func TestStore_ConcurrentEventAndContextAccess(t *testing.T) {
	t.Parallel()

	store := openStore(t, t.TempDir())
	if err := store.SaveSession(offline.Session{ID: "s1", Type: "workout", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 50 {
			ev := offline.Event{ID: fmt.Sprintf("e%d", i), SessionID: "s1",
				Kind: "log_set", Payload: json.RawMessage(`{}`), CreatedAt: time.Now()}
			if err := store.SaveEvent(ev, "Bench Press"); err != nil {
				t.Errorf("SaveEvent: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			store.LastExercise("s1")
		}
	}()
	wg.Wait()

	if got := store.LastExercise("s1"); got != "Bench Press" {
		t.Errorf("LastExercise = %q, want Bench Press", got)
	}
}

func TestStore_CapEvictsOldestLowPriorityFirst(t *testing.T) {
	t.Parallel()

	store, err := offline.OpenStore(t.TempDir(), offline.WithMaxEvents(3))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SaveSession(offline.Session{ID: "s1", Type: "workout", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	save := func(id, priority string) {
		t.Helper()
		ev := offline.Event{ID: id, SessionID: "s1", Kind: "log_set",
			Payload: json.RawMessage(`{}`), CreatedAt: time.Now(), Priority: priority}
		if err := store.SaveEvent(ev, ""); err != nil {
			t.Fatalf("SaveEvent(%s): %v", id, err)
		}
	}

	save("high1", offline.PriorityHigh)
	save("low1", offline.PriorityLow)
	save("norm1", offline.PriorityNormal)
	save("norm2", offline.PriorityNormal) // over cap: low1 goes
	save("high2", offline.PriorityHigh)   // over cap: norm1 goes

	pending, err := store.PendingEvents()
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	got := make([]string, 0, len(pending))
	for _, ev := range pending {
		got = append(got, ev.ID)
	}
	want := []string{"high1", "norm2", "high2"}
	if len(got) != len(want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending = %v, want %v", got, want)
		}
	}
}

func TestStore_CapNeverEvictsHighPriority(t *testing.T) {
	t.Parallel()

	store, err := offline.OpenStore(t.TempDir(), offline.WithMaxEvents(2))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SaveSession(offline.Session{ID: "s1", Type: "workout", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	for _, id := range []string{"h1", "h2", "h3"} {
		ev := offline.Event{ID: id, SessionID: "s1", Kind: "log_set",
			Payload: json.RawMessage(`{}`), CreatedAt: time.Now(), Priority: offline.PriorityHigh}
		if err := store.SaveEvent(ev, ""); err != nil {
			t.Fatalf("SaveEvent(%s): %v", id, err)
		}
	}

	// All three survive even though the cap is two.
	pending, err := store.PendingEvents()
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %+v, want all three high-priority events retained", pending)
	}
}

func TestStore_BindBackendID(t *testing.T) {
	t.Parallel()

	store := openStore(t, t.TempDir())
	if err := store.SaveSession(offline.Session{ID: "s1", Type: "workout", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.BindBackendID("s1", "backend-42"); err != nil {
		t.Fatalf("BindBackendID: %v", err)
	}

	sess, err := store.Session("s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.BackendID != "backend-42" || sess.Status != offline.StatusSynced {
		t.Errorf("session = %+v, want backend-42 synced", sess)
	}

	pending, err := store.PendingSessions()
	if err != nil {
		t.Fatalf("PendingSessions: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending sessions = %+v, want none", pending)
	}
}

func TestStore_StatusTransitionsAndDepth(t *testing.T) {
	t.Parallel()

	store := openStore(t, t.TempDir())
	if err := store.SaveSession(offline.Session{ID: "s1", Type: "workout", StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	for _, id := range []string{"e1", "e2", "e3"} {
		ev := offline.Event{ID: id, SessionID: "s1", Kind: "log_set",
			Payload: json.RawMessage(`{}`), CreatedAt: time.Now()}
		if err := store.SaveEvent(ev, ""); err != nil {
			t.Fatalf("SaveEvent(%s): %v", id, err)
		}
	}

	if err := store.SetEventStatus("e1", offline.StatusSynced, 0); err != nil {
		t.Fatalf("SetEventStatus: %v", err)
	}
	if err := store.SetEventStatus("e2", offline.StatusConflict, 1); err != nil {
		t.Fatalf("SetEventStatus: %v", err)
	}

	sessions, events, err := store.QueueDepth()
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if sessions != 1 || events != 1 {
		t.Errorf("QueueDepth = %d sessions %d events, want 1 and 1", sessions, events)
	}

	conflicted, err := store.ConflictedEvents()
	if err != nil {
		t.Fatalf("ConflictedEvents: %v", err)
	}
	if len(conflicted) != 1 || conflicted[0].ID != "e2" {
		t.Fatalf("conflicted = %+v", conflicted)
	}

	// Resolution by requeue restores the retry budget.
	if err := store.ResetEvent("e2"); err != nil {
		t.Fatalf("ResetEvent: %v", err)
	}
	pending, err := store.PendingEvents()
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %+v, want e2 and e3", pending)
	}
	for _, ev := range pending {
		if ev.ID == "e2" && ev.Attempts != 0 {
			t.Errorf("e2 attempts = %d, want reset to 0", ev.Attempts)
		}
	}
}
