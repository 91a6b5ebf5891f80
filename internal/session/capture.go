// Package session drives one microphone capture at a time through the
// idle → listening → processing cycle.
//
// Capture sits between the push-to-talk surface and the recognition
// provider: Start opens a provider stream and begins collecting
// transcripts, Stop (or the max-utterance watchdog, or the provider ending
// the stream itself) finalizes the utterance, runs intent parsing, and
// emits a [Result]. Only one capture can be live at a time; a second Start
// while listening or processing returns [ErrBusy].
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxlift/voxlift/internal/intent"
	"github.com/voxlift/voxlift/pkg/provider/stt"
)

// State is the capture lifecycle state.
type State int

const (
	// StateIdle means no capture is active.
	StateIdle State = iota

	// StateListening means a provider stream is open and transcripts are
	// being collected.
	StateListening

	// StateProcessing means the stream has ended and the utterance is being
	// finalized and parsed.
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

var (
	// ErrBusy is returned by Start while a capture is already live.
	ErrBusy = errors.New("session: capture already active")

	// ErrNotListening is returned by Stop when there is nothing to stop.
	ErrNotListening = errors.New("session: no active capture")
)

const (
	defaultMaxUtterance = 30 * time.Second
	resultBuffer        = 4
)

// Result is one finalized utterance: the joined transcript text plus the
// parsed intent. Err is set when the stream terminated abnormally (for
// example, microphone permission revoked mid-capture).
type Result struct {
	Transcript string
	Confidence float64
	Intent     intent.Intent
	Err        error
}

// Option is a functional option for configuring a [Capture].
type Option func(*Capture)

// WithMaxUtterance bounds how long a single capture may listen before it is
// auto-stopped. Default: 30s.
func WithMaxUtterance(d time.Duration) Option {
	return func(c *Capture) { c.maxUtterance = d }
}

// WithStreamConfig sets the provider stream configuration used for every
// capture.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(c *Capture) { c.streamCfg = cfg }
}

// WithContextFunc supplies conversational context to the intent parser at
// finalization time (last exercise, session activity).
func WithContextFunc(fn func() intent.Context) Option {
	return func(c *Capture) { c.contextFn = fn }
}

// WithPartialFunc registers a callback invoked for every interim transcript
// while listening, typically to paint live feedback in the UI.
func WithPartialFunc(fn func(stt.Transcript)) Option {
	return func(c *Capture) { c.onPartial = fn }
}

// Capture is the single-utterance capture state machine. All methods are
// safe for concurrent use.
type Capture struct {
	engine       stt.StreamingTranscriber
	parser       *intent.Parser
	maxUtterance time.Duration
	streamCfg    stt.StreamConfig
	contextFn    func() intent.Context
	onPartial    func(stt.Transcript)

	mu     sync.Mutex
	state  State
	active *activeCapture

	results chan Result
}

// activeCapture is the per-utterance bookkeeping.
type activeCapture struct {
	handle stt.SessionHandle

	mu     sync.Mutex
	finals []stt.Transcript

	collected chan struct{} // closed when the finals channel closes
	finish    sync.Once
	stopTimer *time.Timer
}

// NewCapture constructs a Capture over the given streaming engine and
// parser.
func NewCapture(engine stt.StreamingTranscriber, parser *intent.Parser, opts ...Option) *Capture {
	c := &Capture{
		engine:       engine,
		parser:       parser,
		maxUtterance: defaultMaxUtterance,
		contextFn:    func() intent.Context { return intent.Context{} },
		results:      make(chan Result, resultBuffer),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Results returns the channel on which finalized utterances are delivered.
func (c *Capture) Results() <-chan Result { return c.results }

// Start opens a provider stream and transitions idle → listening. It
// returns ErrBusy when a capture is already live.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.setStateLocked(StateListening)
	c.mu.Unlock()

	handle, err := c.engine.StartStream(ctx, c.streamCfg)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		return err
	}

	ac := &activeCapture{
		handle:    handle,
		collected: make(chan struct{}),
	}
	ac.stopTimer = time.AfterFunc(c.maxUtterance, func() {
		slog.Info("session: max utterance duration reached, auto-stopping")
		c.finalize(ac)
	})

	c.mu.Lock()
	c.active = ac
	c.mu.Unlock()

	go c.collect(ac)
	return nil
}

// Stop finalizes the live capture (push-to-talk release). The Result
// arrives on the Results channel.
func (c *Capture) Stop() error {
	c.mu.Lock()
	ac := c.active
	listening := c.state == StateListening
	c.mu.Unlock()

	if !listening || ac == nil {
		return ErrNotListening
	}
	c.finalize(ac)
	return nil
}

// collect drains the stream's transcript channels until they close, then
// finalizes in case the provider ended the stream on its own (silence
// detection, browser-side end).
func (c *Capture) collect(ac *activeCapture) {
	partials := ac.handle.Partials()
	finals := ac.handle.Finals()

	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if c.onPartial != nil {
				c.onPartial(t)
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			ac.mu.Lock()
			ac.finals = append(ac.finals, t)
			ac.mu.Unlock()
		}
	}
	close(ac.collected)
	c.finalize(ac)
}

// finalize runs exactly once per capture: close the stream, wait for the
// collector to drain, parse the utterance, emit the Result, return to idle.
func (c *Capture) finalize(ac *activeCapture) {
	ac.finish.Do(func() {
		ac.stopTimer.Stop()

		c.mu.Lock()
		if c.active == ac {
			c.setStateLocked(StateProcessing)
		}
		c.mu.Unlock()

		closeErr := ac.handle.Close()
		<-ac.collected

		ac.mu.Lock()
		finals := ac.finals
		ac.mu.Unlock()

		var texts []string
		var confSum float64
		for _, t := range finals {
			if t.Text != "" {
				texts = append(texts, t.Text)
				confSum += t.Confidence
			}
		}
		transcript := strings.Join(texts, " ")
		var confidence float64
		if len(texts) > 0 {
			confidence = confSum / float64(len(texts))
		}

		res := Result{
			Transcript: transcript,
			Confidence: confidence,
			Err:        closeErr,
			Intent:     c.parser.Parse(transcript, c.contextFn()),
		}

		c.mu.Lock()
		if c.active == ac {
			c.active = nil
			c.setStateLocked(StateIdle)
		}
		c.mu.Unlock()

		select {
		case c.results <- res:
		default:
			slog.Warn("session: results channel full, dropping utterance",
				"transcript", transcript)
		}
	})
}

// setStateLocked transitions the state machine. Callers hold c.mu.
func (c *Capture) setStateLocked(next State) {
	if c.state == next {
		return
	}
	slog.Info("session: capture state transition",
		"from", c.state.String(), "to", next.String())
	c.state = next
}
