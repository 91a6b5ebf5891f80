// Package confirm serializes spoken confirmations through a single
// tts.Speaker.
//
// Utterances are queued with a priority. The queue speaks one utterance at
// a time in priority order, FIFO within a tier, so two quick "logged" acks
// never talk over each other. A high-priority enqueue interrupts whatever
// is currently playing; the interrupted utterance replays afterwards.
// The queue is bounded: when full, the oldest utterance in the lowest tier
// is evicted to make room, and an arrival that would outrank nothing is
// dropped instead. Failed utterances are retried a bounded number of times
// at the front of their tier, then dropped with a log line.
package confirm

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/voxlift/voxlift/internal/intent"
	"github.com/voxlift/voxlift/pkg/provider/tts"
)

// Priority orders utterances. Higher values preempt lower ones.
type Priority int

const (
	// PriorityLow is for optional chatter: encouragement, hints.
	PriorityLow Priority = iota

	// PriorityNormal is for routine acknowledgements.
	PriorityNormal

	// PriorityHigh is for confirmations that block further input and for
	// error prompts. A high enqueue interrupts the current utterance.
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

const (
	defaultMaxSize    = 32
	defaultMaxRetries = 2
)

// Option is a functional option for configuring a [Queue].
type Option func(*Queue)

// WithMaxSize bounds the number of queued utterances. Default: 32.
func WithMaxSize(n int) Option {
	return func(q *Queue) { q.maxSize = n }
}

// WithMaxRetries sets how many times a failed utterance is retried before
// being dropped. Default: 2.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithStyle sets the read-back style used by [Queue.ConfirmIntent].
// Default: [StyleConcise].
func WithStyle(style Style) Option {
	return func(q *Queue) { q.style = style }
}

// WithSpeakOptions sets the synthesis options applied to every utterance.
func WithSpeakOptions(opts tts.SpeakOptions) Option {
	return func(q *Queue) { q.speakOpts = opts }
}

// item is one queued utterance.
type item struct {
	id       string
	text     string
	priority Priority
	attempts int
}

// Queue is the spoken-confirmation queue. Enqueue may be called from any
// goroutine; Run is the single consumer.
type Queue struct {
	speaker    tts.Speaker
	maxSize    int
	maxRetries int
	style      Style
	speakOpts  tts.SpeakOptions

	mu            sync.Mutex
	items         []*item
	speaking      *item
	cancelCurrent context.CancelFunc

	wake chan struct{}
}

// New constructs a Queue over the given speaker.
func New(speaker tts.Speaker, opts ...Option) *Queue {
	q := &Queue{
		speaker:    speaker,
		maxSize:    defaultMaxSize,
		maxRetries: defaultMaxRetries,
		style:      StyleConcise,
		wake:       make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// ConfirmIntent renders the confirmation phrase for a parsed intent in the
// queue's style and enqueues it. Intents needing confirmation are spoken at
// high priority so the question lands immediately.
func (q *Queue) ConfirmIntent(in intent.Intent) string {
	priority := PriorityNormal
	if in.NeedsConfirmation {
		priority = PriorityHigh
	}
	return q.Enqueue(ForIntent(in, q.style), priority)
}

// Enqueue adds an utterance and returns its id. The text is passed through
// [Speakable] first. An empty id means the utterance was dropped because
// the queue was full of equal-or-higher-priority work.
func (q *Queue) Enqueue(text string, priority Priority) string {
	it := &item{
		id:       uuid.NewString(),
		text:     Speakable(text),
		priority: priority,
	}

	q.mu.Lock()
	if len(q.items) >= q.maxSize && !q.evictLocked(priority) {
		q.mu.Unlock()
		slog.Warn("confirm: queue full, dropping utterance",
			"priority", priority, "text", text)
		return ""
	}
	q.insertLocked(it, false)

	interrupt := priority == PriorityHigh &&
		q.speaking != nil && q.speaking.priority < PriorityHigh
	cancel := q.cancelCurrent
	q.mu.Unlock()

	if interrupt && cancel != nil {
		slog.Debug("confirm: high-priority utterance interrupts playback")
		cancel()
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return it.id
}

// Len returns the number of queued utterances, not counting one currently
// playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the queued texts in speak order.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	for i, it := range q.items {
		out[i] = it.text
	}
	return out
}

// Run consumes the queue until ctx is cancelled, speaking one utterance at
// a time.
func (q *Queue) Run(ctx context.Context) error {
	for {
		it := q.pop()
		if it == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}

		sctx, cancel := context.WithCancel(ctx)
		q.mu.Lock()
		q.speaking = it
		q.cancelCurrent = cancel
		q.mu.Unlock()

		err := q.speaker.Speak(sctx, it.text, q.speakOpts)

		q.mu.Lock()
		q.speaking = nil
		q.cancelCurrent = nil
		q.mu.Unlock()
		cancel()

		switch {
		case err == nil:
			// Spoken in full.
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, context.Canceled):
			// Interrupted by a high-priority arrival: replay after it.
			q.mu.Lock()
			q.insertLocked(it, true)
			q.mu.Unlock()
		default:
			it.attempts++
			if it.attempts <= q.maxRetries {
				slog.Warn("confirm: speak failed, retrying",
					"error", err, "attempt", it.attempts, "text", it.text)
				q.mu.Lock()
				q.insertLocked(it, true)
				q.mu.Unlock()
			} else {
				slog.Error("confirm: speak failed, dropping utterance",
					"error", err, "attempts", it.attempts, "text", it.text)
			}
		}
	}
}

// pop removes and returns the head of the queue, or nil when empty.
func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it
}

// insertLocked places it in priority order. With atFront set, it goes
// before existing items of the same tier (retries and interrupted replays);
// otherwise behind them (normal FIFO arrival).
func (q *Queue) insertLocked(it *item, atFront bool) {
	pos := len(q.items)
	for i, existing := range q.items {
		if existing.priority < it.priority ||
			(atFront && existing.priority == it.priority) {
			pos = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = it
}

// evictLocked drops the oldest utterance of the lowest tier present,
// provided the arriving priority outranks or equals that tier. Reports
// whether room was made.
func (q *Queue) evictLocked(arriving Priority) bool {
	if len(q.items) == 0 {
		return true
	}
	lowest := q.items[len(q.items)-1].priority
	if lowest > arriving {
		return false
	}
	// Items are priority-ordered, so the lowest tier is the tail; its
	// oldest member is the first item of that tier.
	for i, it := range q.items {
		if it.priority == lowest {
			slog.Debug("confirm: queue full, evicting oldest low-priority utterance",
				"priority", lowest, "text", it.text)
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}
