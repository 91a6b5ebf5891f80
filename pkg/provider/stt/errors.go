package stt

import "errors"

// Named failure conditions. Callers branch on these with [errors.Is] because
// each demands different user remediation: a denied microphone permission
// needs a settings prompt, a missing device needs hardware, a timeout or
// generic failure needs a retry.
var (
	// ErrPermissionDenied indicates the platform refused microphone access.
	ErrPermissionDenied = errors.New("stt: microphone permission denied")

	// ErrNoAudioDevice indicates no capture device is available.
	ErrNoAudioDevice = errors.New("stt: no audio input device found")

	// ErrPayloadTooLarge indicates a batch request exceeded the provider's
	// maximum audio payload size.
	ErrPayloadTooLarge = errors.New("stt: audio payload exceeds provider limit")

	// ErrTimeout indicates the provider did not answer within the bounded
	// wait. Distinct from generic failure so callers can retry.
	ErrTimeout = errors.New("stt: transcription timed out")

	// ErrNotSupported is returned for operations the engine cannot perform
	// (e.g., mid-session keyword updates).
	ErrNotSupported = errors.New("stt: operation not supported by this engine")
)
