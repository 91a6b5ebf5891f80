// Package provider defines the capability model shared by all speech
// backends.
//
// Engines differ widely in what they can do: the on-device browser bridge
// streams interim results and synthesizes speech, the network engine only
// accepts finished recordings, the native engine streams but cannot speak.
// Rather than encoding these differences as type assertions scattered across
// the pipeline, every backend reports its capabilities through [Info] and
// callers select behaviour with [Has].
package provider

// Capability identifies one feature a speech backend may support.
type Capability string

const (
	// CapTranscribe means the backend accepts a complete audio recording
	// and returns a batch transcription.
	CapTranscribe Capability = "transcribe"

	// CapStream means the backend accepts incremental audio and emits
	// interim and final transcripts while recognition is in flight.
	CapStream Capability = "stream"

	// CapSpeak means the backend can synthesize text to audible speech.
	CapSpeak Capability = "speak"
)

// Info is implemented by every speech backend. It identifies the backend and
// declares what it can do, so callers can route work without knowing concrete
// types.
type Info interface {
	// Name returns the backend's registered name (e.g., "webspeech",
	// "whisper", "openai"). Stable across runs; used in logs and metrics.
	Name() string

	// Capabilities returns the set of features this backend supports. The
	// returned slice must not be mutated by callers.
	Capabilities() []Capability
}

// Has reports whether the backend declares the given capability.
func Has(p Info, c Capability) bool {
	for _, have := range p.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}
