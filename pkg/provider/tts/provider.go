// Package tts defines the Speaker interface for text-to-speech backends.
//
// A Speaker wraps a speech synthesis service and exposes a single blocking
// Speak call. Serialization is deliberately left to the caller: the
// confirmation queue owns the one-utterance-at-a-time invariant, so a
// Speaker only needs to synthesize and play one text and honour context
// cancellation for interrupts.
//
// Implementations must be safe for concurrent use even though the
// confirmation queue never issues overlapping calls.
package tts

import (
	"context"
	"errors"

	"github.com/voxlift/voxlift/pkg/provider"
)

// ErrSynthesisFailed is the generic synthesis failure. Providers wrap the
// underlying cause; callers that only need to know "this utterance did not
// play" match on this.
var ErrSynthesisFailed = errors.New("tts: synthesis failed")

// SpeakOptions configures one synthesis call.
type SpeakOptions struct {
	// Voice selects the provider voice profile. Empty uses the provider
	// default.
	Voice string

	// Rate is the speaking rate multiplier. Zero means 1.0 (normal speed);
	// providers clamp to their supported range.
	Rate float64

	// Pitch shifts the voice pitch in provider-specific units. Zero is
	// neutral.
	Pitch float64

	// Volume is the playback volume in [0, 1]. Zero means provider default.
	Volume float64
}

// Speaker is the abstraction over any TTS backend.
type Speaker interface {
	provider.Info

	// Speak synthesizes text and plays it to completion. It blocks until
	// playback finishes, the context is cancelled (interrupt), or synthesis
	// fails. Cancellation is not an error condition for callers that
	// requested it; implementations return ctx.Err() in that case.
	Speak(ctx context.Context, text string, opts SpeakOptions) error
}
