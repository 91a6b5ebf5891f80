// Package webspeech provides the on-device browser engine.
//
// Recognition and synthesis both run on the user's device (the Web Speech
// API), so this engine never touches audio bytes: the browser keeps one
// WebSocket open to the server and the provider exchanges JSON control
// messages over it. Interim and final recognition results stream in;
// speak commands and their completion acks flow the other way. Latency is
// near zero and recognition keeps working offline; synthesis may require
// network voices, which is the browser's problem, not ours.
//
// The provider is also the [http.Handler] that accepts the browser's
// WebSocket connection:
//
//	p := webspeech.New()
//	mux.Handle("/v1/speech/bridge", p)
//	handle, err := p.StartStream(ctx, cfg) // recognition
//	err = p.Speak(ctx, "logged 10 reps", opts) // synthesis
//
// One browser connection is active at a time; a second connection is
// refused until the first drops.
package webspeech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/stt"
	"github.com/voxlift/voxlift/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ stt.StreamingTranscriber = (*Provider)(nil)
	_ tts.Speaker              = (*Provider)(nil)
)

// ErrNoBrowser is returned when an operation needs a connected browser and
// none is attached.
var ErrNoBrowser = errors.New("webspeech: no browser connected")

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithOriginPatterns sets the allowed WebSocket origin patterns for the
// browser connection (e.g., "app.voxlift.dev"). Defaults to same-origin only.
func WithOriginPatterns(patterns ...string) Option {
	return func(p *Provider) { p.originPatterns = patterns }
}

// bridgeMessage is the JSON envelope exchanged with the browser.
type bridgeMessage struct {
	Type       string   `json:"type"` // result, error, end, spoken, start, stop, speak, cancel
	ID         string   `json:"id,omitempty"`
	Text       string   `json:"text,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	IsFinal    bool     `json:"is_final,omitempty"`
	Language   string   `json:"language,omitempty"`
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Voice      string   `json:"voice,omitempty"`
	Rate       float64  `json:"rate,omitempty"`
	Pitch      float64  `json:"pitch,omitempty"`
	Volume     float64  `json:"volume,omitempty"`
}

// Provider implements stt.StreamingTranscriber and tts.Speaker over a single
// browser bridge connection. All exported methods are safe for concurrent
// use.
type Provider struct {
	originPatterns []string

	mu        sync.Mutex
	conn      *websocket.Conn
	connReady chan struct{} // closed when a browser attaches; replaced on detach
	stream    *session      // active recognition session, nil when idle
	speakAcks map[string]chan error
}

// New creates a browser-bridge Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		connReady: make(chan struct{}),
		speakAcks: make(map[string]chan error),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements provider.Info.
func (p *Provider) Name() string { return "webspeech" }

// Capabilities implements provider.Info: streaming recognition plus
// synthesis, both delegated to the device. There is no batch path because
// audio never leaves the browser.
func (p *Provider) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapStream, provider.CapSpeak}
}

// ServeHTTP upgrades the request to a WebSocket and attaches the connection
// as the active bridge. A second connection while one is attached is refused
// so the single-active-engine invariant holds end to end.
func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: p.originPatterns,
	})
	if err != nil {
		slog.Warn("webspeech: accept failed", "error", err)
		return
	}

	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		conn.Close(websocket.StatusPolicyViolation, "another bridge is already connected")
		return
	}
	p.conn = conn
	close(p.connReady)
	p.mu.Unlock()

	slog.Debug("webspeech: browser attached", "remote", r.RemoteAddr)
	go p.readLoop(conn)
}

// readLoop demultiplexes all inbound browser messages for the lifetime of
// one connection: recognition results to the active session, speak acks to
// their waiters, errors to both.
func (p *Provider) readLoop(conn *websocket.Conn) {
	defer p.detach(conn)

	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg bridgeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("webspeech: malformed bridge message", "error", err)
			continue
		}

		switch msg.Type {
		case "result":
			p.deliverTranscript(msg)

		case "end":
			p.endStream(nil)

		case "error":
			err := mapBrowserError(msg.Code, msg.Message)
			if msg.ID != "" {
				p.resolveSpeak(msg.ID, err)
			} else {
				p.endStream(err)
			}

		case "spoken":
			p.resolveSpeak(msg.ID, nil)
		}
	}
}

// detach clears the connection, fails the active session and all pending
// speaks, and resets the ready gate for the next browser.
func (p *Provider) detach(conn *websocket.Conn) {
	conn.Close(websocket.StatusNormalClosure, "bridge detached")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != conn {
		return
	}
	p.conn = nil
	p.connReady = make(chan struct{})
	if p.stream != nil {
		p.stream.finish(fmt.Errorf("webspeech: %w", ErrNoBrowser))
		p.stream = nil
	}
	for id, ch := range p.speakAcks {
		ch <- fmt.Errorf("webspeech: %w", ErrNoBrowser)
		delete(p.speakAcks, id)
	}
	slog.Debug("webspeech: browser detached")
}

// deliverTranscript routes a recognition result to the active session.
func (p *Provider) deliverTranscript(msg bridgeMessage) {
	p.mu.Lock()
	s := p.stream
	p.mu.Unlock()
	if s == nil {
		return
	}
	s.deliver(stt.Transcript{
		Text:       msg.Text,
		IsFinal:    msg.IsFinal,
		Confidence: msg.Confidence,
	})
}

// endStream terminates the active session, recording err when non-nil.
func (p *Provider) endStream(err error) {
	p.mu.Lock()
	s := p.stream
	p.stream = nil
	p.mu.Unlock()
	if s != nil {
		s.finish(err)
	}
}

// resolveSpeak completes a pending Speak call.
func (p *Provider) resolveSpeak(id string, err error) {
	p.mu.Lock()
	ch, ok := p.speakAcks[id]
	if ok {
		delete(p.speakAcks, id)
	}
	p.mu.Unlock()
	if ok {
		ch <- err
	}
}

// write marshals msg and sends it to conn.
func (p *Provider) write(ctx context.Context, conn *websocket.Conn, msg bridgeMessage) error {
	data, _ := json.Marshal(msg)
	return conn.Write(ctx, websocket.MessageText, data)
}

// currentConn returns the attached connection or ErrNoBrowser.
func (p *Provider) currentConn() (*websocket.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil, ErrNoBrowser
	}
	return p.conn, nil
}

// StartStream tells the browser to begin recognising and returns the session
// handle. It blocks until a browser is attached or ctx is cancelled. Only
// one recognition session may be active per bridge.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	ready := p.connReady
	p.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("webspeech: waiting for browser: %w", ctx.Err())
	}

	conn, err := p.currentConn()
	if err != nil {
		return nil, err
	}

	s := &session{
		provider: p,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}

	p.mu.Lock()
	if p.stream != nil {
		p.mu.Unlock()
		return nil, errors.New("webspeech: a recognition session is already active")
	}
	p.stream = s
	p.mu.Unlock()

	start := bridgeMessage{Type: "start", Language: cfg.Language}
	for _, kw := range cfg.Keywords {
		start.Keywords = append(start.Keywords, kw.Keyword)
	}
	if err := p.write(ctx, conn, start); err != nil {
		p.endStream(nil)
		return nil, fmt.Errorf("webspeech: send start: %w", err)
	}

	return s, nil
}

// Speak sends a speak command to the browser and blocks until the device
// reports playback complete, reports a synthesis error, or ctx is cancelled.
// Cancellation sends a cancel command so the device stops mid-utterance.
func (p *Provider) Speak(ctx context.Context, text string, opts tts.SpeakOptions) error {
	conn, err := p.currentConn()
	if err != nil {
		return fmt.Errorf("webspeech: %w", err)
	}

	id := uuid.NewString()
	ack := make(chan error, 1)

	p.mu.Lock()
	p.speakAcks[id] = ack
	p.mu.Unlock()

	msg := bridgeMessage{
		Type:   "speak",
		ID:     id,
		Text:   text,
		Voice:  opts.Voice,
		Rate:   opts.Rate,
		Pitch:  opts.Pitch,
		Volume: opts.Volume,
	}
	if err := p.write(ctx, conn, msg); err != nil {
		p.resolveSpeak(id, nil) // drop the waiter; nobody is listening
		return fmt.Errorf("webspeech: send speak: %w: %v", tts.ErrSynthesisFailed, err)
	}

	select {
	case err := <-ack:
		if err != nil {
			return fmt.Errorf("webspeech: %w: %v", tts.ErrSynthesisFailed, err)
		}
		return nil
	case <-ctx.Done():
		// Interrupt: tell the device to stop speaking, then abandon the ack.
		cancelMsg := bridgeMessage{Type: "cancel", ID: id}
		_ = p.write(context.Background(), conn, cancelMsg)
		p.mu.Lock()
		delete(p.speakAcks, id)
		p.mu.Unlock()
		return ctx.Err()
	}
}

// session is a live browser recognition session. It implements
// stt.SessionHandle; transcript delivery happens on the provider's readLoop.
type session struct {
	provider *Provider

	partials chan stt.Transcript
	finals   chan stt.Transcript

	mu      sync.Mutex
	closed  bool
	lastErr error
}

var _ stt.SessionHandle = (*session)(nil)

// SendAudio always returns stt.ErrNotSupported: audio never leaves the
// browser in this engine.
func (s *session) SendAudio(_ []byte) error {
	return fmt.Errorf("webspeech: %w", stt.ErrNotSupported)
}

// Partials returns the interim transcript channel.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the authoritative transcript channel.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close tells the browser to stop recognising and returns the terminal
// session error, if any. Device and permission failures reported by the
// browser map to the named stt errors. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.mu.Unlock()

	if !alreadyClosed {
		if conn, err := s.provider.currentConn(); err == nil {
			_ = s.provider.write(context.Background(), conn, bridgeMessage{Type: "stop"})
		}
		s.provider.endStreamIf(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// endStreamIf unbinds s when it is still the active session.
func (p *Provider) endStreamIf(s *session) {
	p.mu.Lock()
	active := p.stream == s
	if active {
		p.stream = nil
	}
	p.mu.Unlock()
	if active {
		s.finish(nil)
	}
}

// deliver routes one transcript onto the right channel without blocking the
// provider's readLoop.
func (s *session) deliver(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ch := s.partials
	if t.IsFinal {
		ch = s.finals
	}
	select {
	case ch <- t:
	default:
		slog.Warn("webspeech: transcript channel full, dropping", "is_final", t.IsFinal)
	}
}

// finish records the terminal error and closes the transcript channels.
// Idempotent.
func (s *session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if err != nil && s.lastErr == nil {
		s.lastErr = err
	}
	close(s.partials)
	close(s.finals)
}

// mapBrowserError translates Web Speech API error codes into the named stt
// error conditions so callers can branch on remediation.
func mapBrowserError(code, message string) error {
	switch code {
	case "not-allowed", "service-not-allowed":
		return fmt.Errorf("webspeech: %w: %s", stt.ErrPermissionDenied, message)
	case "audio-capture":
		return fmt.Errorf("webspeech: %w: %s", stt.ErrNoAudioDevice, message)
	case "network":
		return fmt.Errorf("webspeech: %w: %s", stt.ErrTimeout, message)
	default:
		return errors.New("webspeech: recognition error " + code + ": " + message)
	}
}
