package stt

import "time"

// Result is the outcome of a batch transcription call.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Alternatives holds lower-ranked candidate transcriptions, best first.
	// May be nil for providers that return a single hypothesis.
	Alternatives []Alternative

	// Language is the BCP-47 tag of the detected or configured language.
	Language string

	// Duration is the length of the submitted audio, when reported.
	Duration time.Duration
}

// Alternative is a lower-ranked candidate transcription.
type Alternative struct {
	Text       string
	Confidence float64
}

// Transcript represents one speech-to-text result emitted by a streaming
// session. Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the engine does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost represents a vocabulary hint for streaming recognition.
// Used to improve recognition of exercise names ("Romanian deadlift").
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (engine-specific scale).
	Boost float64
}
