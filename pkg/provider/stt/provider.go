// Package stt defines the provider interfaces for speech-to-text backends.
//
// Two access patterns are supported, matching the two kinds of engine the
// pipeline uses:
//
//   - [Transcriber] is the batch interface: a finalized audio recording goes
//     in, a single [Result] comes out. The network engine (OpenAI Whisper)
//     only works this way.
//   - [StreamingTranscriber] opens a [SessionHandle] that accepts raw PCM
//     frames and emits two streams of [Transcript] values — low-latency
//     partials for UI responsiveness and authoritative finals for intent
//     parsing. The on-device engines work this way.
//
// Callers must query which pattern an engine supports via [provider.Has]
// rather than type-asserting blindly.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"io"

	"github.com/voxlift/voxlift/pkg/provider"
)

// TranscribeOptions configures a single batch transcription call.
type TranscribeOptions struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// Empty lets the provider auto-detect, if supported.
	Language string

	// Prompt is a domain-adaptation string that biases recognition toward
	// its vocabulary (e.g., exercise names). Providers without prompt
	// support ignore it.
	Prompt string

	// MimeType describes the audio container (e.g., "audio/wav"). Providers
	// that require a specific container reject others with an error.
	MimeType string
}

// StreamConfig describes the audio format and recognition hints for a new
// streaming session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common value: 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition.
	Language string

	// Keywords lists vocabulary hints (exercise names, fitness terms) that
	// increase recognition probability for uncommon words.
	Keywords []KeywordBoost
}

// Transcriber is the batch speech-to-text interface.
type Transcriber interface {
	provider.Info

	// Transcribe submits a complete audio recording and returns the final
	// transcription result. The reader is consumed fully before the request
	// is made; implementations enforce their payload limits and return
	// [ErrPayloadTooLarge] when exceeded.
	//
	// Blocking is bounded: implementations must surface [ErrTimeout] rather
	// than hang when the backend does not answer in time.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Result, error)
}

// StreamingTranscriber is the continuous speech-to-text interface.
type StreamingTranscriber interface {
	provider.Info

	// StartStream opens a streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns
	// the handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// SessionHandle represents an open streaming transcription session. It is an
// interface so test code can provide mock implementations without a live
// engine. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the engine. The
	// chunk must match the SampleRate, Channels, and bit depth agreed in
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel emitting low-latency interim
	// Transcript values. Suitable for driving UI transcript previews; must
	// not be fed to the intent parser. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel emitting authoritative Transcript
	// values once the engine commits to a recognition result. Closed when
	// the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and releases all
	// resources. After Close returns, Partials and Finals are closed.
	// Calling Close more than once is safe and returns nil.
	Close() error
}
