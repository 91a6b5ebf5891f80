package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxlift/voxlift/internal/intent"
	"github.com/voxlift/voxlift/internal/session"
	"github.com/voxlift/voxlift/pkg/provider/stt"
	"github.com/voxlift/voxlift/pkg/provider/stt/mock"
)

func waitResult(t *testing.T, c *session.Capture) session.Result {
	t.Helper()
	select {
	case res := <-c.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a capture result")
		return session.Result{}
	}
}

func TestCapture_PushToTalkCycle(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	engine := &mock.Provider{Session: sess}

	var partials []stt.Transcript
	var mu sync.Mutex
	c := session.NewCapture(engine, intent.NewParser(nil),
		session.WithPartialFunc(func(tr stt.Transcript) {
			mu.Lock()
			partials = append(partials, tr)
			mu.Unlock()
		}),
	)

	if got := c.State(); got != session.StateIdle {
		t.Fatalf("initial state = %v, want idle", got)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != session.StateListening {
		t.Fatalf("state after Start = %v, want listening", got)
	}

	sess.PartialsCh <- stt.Transcript{Text: "bench", Confidence: 0.4}
	sess.FinalsCh <- stt.Transcript{Text: "bench press 10 reps at 185 pounds", IsFinal: true, Confidence: 0.9}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	res := waitResult(t, c)
	if res.Transcript != "bench press 10 reps at 185 pounds" {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if res.Intent.Kind != intent.KindLogSet {
		t.Errorf("intent kind = %v, want log_set", res.Intent.Kind)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", res.Confidence)
	}
	if got := c.State(); got != session.StateIdle {
		t.Errorf("state after result = %v, want idle", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(partials) != 1 || partials[0].Text != "bench" {
		t.Errorf("partials = %+v, want one interim 'bench'", partials)
	}
}

func TestCapture_OnlyOneLiveCapture(t *testing.T) {
	t.Parallel()

	engine := &mock.Provider{Session: mock.NewSession()}
	c := session.NewCapture(engine, intent.NewParser(nil))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, session.ErrBusy) {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); !errors.Is(err, session.ErrNotListening) {
		t.Errorf("second Stop = %v, want ErrNotListening", err)
	}
}

func TestCapture_AutoStopsAtMaxUtterance(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	engine := &mock.Provider{Session: sess}
	c := session.NewCapture(engine, intent.NewParser(nil),
		session.WithMaxUtterance(50*time.Millisecond))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.FinalsCh <- stt.Transcript{Text: "rest for 3 minutes", IsFinal: true, Confidence: 0.8}

	res := waitResult(t, c)
	if res.Intent.Kind != intent.KindRestTimer {
		t.Errorf("intent kind = %v, want rest_timer", res.Intent.Kind)
	}
	if err := c.Stop(); !errors.Is(err, session.ErrNotListening) {
		t.Errorf("Stop after auto-stop = %v, want ErrNotListening", err)
	}
}

func TestCapture_ProviderEndedStream(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	engine := &mock.Provider{Session: sess}
	c := session.NewCapture(engine, intent.NewParser(nil))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.FinalsCh <- stt.Transcript{Text: "start workout", IsFinal: true, Confidence: 0.95}
	sess.Close() // the engine ended the stream on its own

	res := waitResult(t, c)
	if res.Intent.Kind != intent.KindStartWorkout {
		t.Errorf("intent kind = %v, want start_workout", res.Intent.Kind)
	}
}

func TestCapture_EmptyUtterance(t *testing.T) {
	t.Parallel()

	engine := &mock.Provider{Session: mock.NewSession()}
	c := session.NewCapture(engine, intent.NewParser(nil))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	res := waitResult(t, c)
	if res.Transcript != "" {
		t.Errorf("transcript = %q, want empty", res.Transcript)
	}
	if res.Intent.Kind != intent.KindUnknown {
		t.Errorf("intent kind = %v, want unknown", res.Intent.Kind)
	}
}

func TestCapture_ContextFeedsParser(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	engine := &mock.Provider{Session: sess}
	c := session.NewCapture(engine, intent.NewParser(nil),
		session.WithContextFunc(func() intent.Context {
			return intent.Context{LastExercise: "Bench Press", ActiveSession: true}
		}),
	)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.FinalsCh <- stt.Transcript{Text: "10 reps at 190", IsFinal: true, Confidence: 0.9}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	res := waitResult(t, c)
	if res.Intent.Params.Exercise != "Bench Press" || !res.Intent.Params.ExerciseInferred {
		t.Errorf("params = %+v, want Bench Press inferred from context", res.Intent.Params)
	}
}
