// Package mock provides a test double for the tts.Speaker interface.
//
// Speaker records every utterance and can be scripted to fail a set number
// of times, block until cancelled, or delay playback — which is how the
// confirmation queue tests exercise retries and interrupts.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/tts"
)

// SpeakCall records a single invocation of Speaker.Speak.
type SpeakCall struct {
	// Text is the text passed to Speak.
	Text string
	// Opts is the SpeakOptions passed to Speak.
	Opts tts.SpeakOptions
}

// Speaker is a mock implementation of tts.Speaker.
type Speaker struct {
	mu sync.Mutex

	// SpeakerName is returned by Name. Defaults to "mock" when empty.
	SpeakerName string

	// SpeakErr, if non-nil, is returned from Speak while FailCount > 0 (or
	// always, when FailCount is negative).
	SpeakErr error

	// FailCount is the number of Speak calls that return SpeakErr before
	// calls start succeeding. Negative means fail forever.
	FailCount int

	// SpeakDelay simulates playback duration. Speak blocks for this long
	// (or until ctx is cancelled) before returning.
	SpeakDelay time.Duration

	// Calls records every invocation of Speak, including failed ones.
	Calls []SpeakCall
}

var _ tts.Speaker = (*Speaker)(nil)

// Name implements provider.Info.
func (s *Speaker) Name() string {
	if s.SpeakerName == "" {
		return "mock"
	}
	return s.SpeakerName
}

// Capabilities implements provider.Info.
func (s *Speaker) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapSpeak}
}

// Speak records the call, honours the scripted delay and failure budget, and
// returns ctx.Err() when cancelled mid-playback.
func (s *Speaker) Speak(ctx context.Context, text string, opts tts.SpeakOptions) error {
	s.mu.Lock()
	s.Calls = append(s.Calls, SpeakCall{Text: text, Opts: opts})
	fail := s.SpeakErr != nil && (s.FailCount < 0 || s.FailCount > 0)
	if fail && s.FailCount > 0 {
		s.FailCount--
	}
	delay := s.SpeakDelay
	s.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	if fail {
		return s.SpeakErr
	}
	return nil
}

// Spoken returns a copy of the texts passed to Speak so far. Thread-safe.
func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Speaker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}
