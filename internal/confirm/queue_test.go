package confirm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxlift/voxlift/internal/confirm"
	"github.com/voxlift/voxlift/internal/intent"
	"github.com/voxlift/voxlift/internal/numparse"
	"github.com/voxlift/voxlift/pkg/provider/tts/mock"
)

// waitForCalls polls until the mock has recorded at least n calls.
func waitForCalls(t *testing.T, spk *mock.Speaker, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(spk.Spoken()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d calls, have %v", n, spk.Spoken())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueue_PriorityOrderStableWithinTier(t *testing.T) {
	t.Parallel()

	spk := &mock.Speaker{}
	q := confirm.New(spk)

	q.Enqueue("low one", confirm.PriorityLow)
	q.Enqueue("normal one", confirm.PriorityNormal)
	q.Enqueue("low two", confirm.PriorityLow)
	q.Enqueue("high one", confirm.PriorityHigh)
	q.Enqueue("normal two", confirm.PriorityNormal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitForCalls(t, spk, 5)
	want := []string{"high one", "normal one", "normal two", "low one", "low two"}
	got := spk.Spoken()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("spoken order = %v, want %v", got, want)
		}
	}
}

func TestQueue_HighPriorityInterruptsAndReplays(t *testing.T) {
	t.Parallel()

	spk := &mock.Speaker{SpeakDelay: 150 * time.Millisecond}
	q := confirm.New(spk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("a long low remark", confirm.PriorityLow)
	waitForCalls(t, spk, 1) // playback started

	q.Enqueue("urgent question", confirm.PriorityHigh)

	// Interrupted low replays after the high utterance.
	waitForCalls(t, spk, 3)
	got := spk.Spoken()
	if got[1] != "urgent question" || got[2] != "a long low remark" {
		t.Fatalf("spoken = %v, want interrupt then replay", got)
	}
}

func TestQueue_RetriesThenDrops(t *testing.T) {
	t.Parallel()

	spk := &mock.Speaker{SpeakErr: errors.New("device busy"), FailCount: -1}
	q := confirm.New(spk, confirm.WithMaxRetries(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("doomed", confirm.PriorityNormal)

	// Initial attempt plus two retries, then the item is dropped.
	waitForCalls(t, spk, 3)
	time.Sleep(50 * time.Millisecond)
	if n := len(spk.Spoken()); n != 3 {
		t.Errorf("attempts = %d, want exactly 3", n)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0 after drop", q.Len())
	}
}

func TestQueue_RetryGoesToFrontOfTier(t *testing.T) {
	t.Parallel()

	spk := &mock.Speaker{SpeakErr: errors.New("hiccup"), FailCount: 1}
	q := confirm.New(spk, confirm.WithMaxRetries(2))

	q.Enqueue("first", confirm.PriorityNormal)
	q.Enqueue("second", confirm.PriorityNormal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitForCalls(t, spk, 3)
	got := spk.Spoken()
	// "first" fails once and is retried before "second" plays.
	want := []string{"first", "first", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("spoken = %v, want %v", got, want)
		}
	}
}

func TestQueue_BoundedEvictsOldestLowFirst(t *testing.T) {
	t.Parallel()

	spk := &mock.Speaker{}
	q := confirm.New(spk, confirm.WithMaxSize(3))

	q.Enqueue("low one", confirm.PriorityLow)
	q.Enqueue("low two", confirm.PriorityLow)
	q.Enqueue("normal one", confirm.PriorityNormal)
	q.Enqueue("normal two", confirm.PriorityNormal) // evicts "low one"

	pending := q.Pending()
	want := []string{"normal one", "normal two", "low two"}
	if len(pending) != len(want) {
		t.Fatalf("pending = %v, want %v", pending, want)
	}
	for i := range want {
		if pending[i] != want[i] {
			t.Fatalf("pending = %v, want %v", pending, want)
		}
	}

	// A low arrival that outranks nothing is dropped, not queued.
	if id := q.Enqueue("low three", confirm.PriorityLow); id == "" {
		t.Fatal("equal-tier arrival should evict the oldest low, not be dropped")
	}
	if id := q.Enqueue("low four", confirm.PriorityLow); id == "" {
		t.Fatal("same again")
	}
	got := q.Pending()
	if got[len(got)-1] != "low four" {
		t.Errorf("pending tail = %v, want low four last", got)
	}
}

func TestQueue_ExpandsSpeakableText(t *testing.T) {
	t.Parallel()

	spk := &mock.Speaker{}
	q := confirm.New(spk)

	q.Enqueue("185 lbs at RPE 8", confirm.PriorityNormal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	waitForCalls(t, spk, 1)
	got := spk.Spoken()[0]
	if !strings.Contains(got, "pounds") || !strings.Contains(got, "R P E") {
		t.Errorf("spoken text = %q, want unit and acronym expansion", got)
	}
}

func TestConfirmIntent_StylesAndQuestions(t *testing.T) {
	t.Parallel()

	logged := intent.Intent{
		Kind: intent.KindLogSet,
		Params: intent.Params{
			Exercise: "Bench Press",
			Reps:     10, HasReps: true,
			Weight: &numparse.Weight{Value: 185, Unit: numparse.Pounds},
		},
		Confidence: 0.85,
	}

	if got := confirm.ForIntent(logged, confirm.StyleMinimal); got != "Logged." {
		t.Errorf("minimal = %q", got)
	}

	concise := confirm.ForIntent(logged, confirm.StyleConcise)
	if !strings.Contains(strings.ToLower(concise), "bench press") ||
		!strings.Contains(concise, "10 reps") || !strings.Contains(concise, "185 pounds") {
		t.Errorf("concise = %q", concise)
	}

	detailed := confirm.ForIntent(logged, confirm.StyleDetailed)
	if !strings.Contains(detailed, "undo") {
		t.Errorf("detailed = %q, want an undo hint", detailed)
	}

	uncertain := logged
	uncertain.NeedsConfirmation = true
	if got := confirm.ForIntent(uncertain, confirm.StyleConcise); !strings.HasPrefix(got, "Did you mean") {
		t.Errorf("uncertain = %q, want a read-back question", got)
	}

	rest := intent.Intent{Kind: intent.KindRestTimer, Params: intent.Params{RestSeconds: 180}}
	if got := confirm.ForIntent(rest, confirm.StyleConcise); !strings.Contains(got, "3 minutes") {
		t.Errorf("rest = %q", got)
	}
}
