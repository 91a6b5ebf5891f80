// Package mock provides test doubles for the stt package interfaces.
//
// Provider implements both [stt.Transcriber] and [stt.StreamingTranscriber].
// Pre-populate TranscribeResult or Session to script outcomes, then inspect
// the recorded calls.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the bytes read from the audio reader.
	Audio []byte
	// Opts is the TranscribeOptions passed to Transcribe.
	Opts stt.TranscribeOptions
}

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock speech-to-text provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock" when empty.
	ProviderName string

	// Caps is returned by Capabilities. Defaults to transcribe+stream when nil.
	Caps []provider.Capability

	// TranscribeResult is returned from Transcribe when TranscribeErr is nil.
	TranscribeResult *stt.Result

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// Session is the SessionHandle returned by StartStream. If nil,
	// StartStream returns a new Session with buffered channels.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// Compile-time interface assertions.
var (
	_ stt.Transcriber          = (*Provider)(nil)
	_ stt.StreamingTranscriber = (*Provider)(nil)
)

// Name implements provider.Info.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Capabilities implements provider.Info.
func (p *Provider) Capabilities() []provider.Capability {
	if p.Caps == nil {
		return []provider.Capability{provider.CapTranscribe, provider.CapStream}
	}
	return p.Caps
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(_ context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Result, error) {
	data, _ := io.ReadAll(audio)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: data, Opts: opts})
	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	if p.TranscribeResult != nil {
		return p.TranscribeResult, nil
	}
	return &stt.Result{}, nil
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.StartStreamCalls = nil
}

// Session is a mock implementation of stt.SessionHandle. Feed transcripts
// through PartialsCh and FinalsCh; recorded audio chunks are available via
// SentChunks.
type Session struct {
	mu sync.Mutex

	// PartialsCh and FinalsCh back the Partials and Finals accessors.
	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	// SendAudioErr, if non-nil, is returned from SendAudio.
	SendAudioErr error

	// SentChunks records copies of every chunk passed to SendAudio.
	SentChunks [][]byte

	closed bool
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session closed")
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.SentChunks = append(s.SentChunks, c)
	return nil
}

// Partials implements stt.SessionHandle.
func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan stt.Transcript { return s.FinalsCh }

// Close closes the transcript channels. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.PartialsCh)
	close(s.FinalsCh)
	return nil
}
