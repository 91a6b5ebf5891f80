// Package config provides the configuration schema, loader, and provider
// registry for the voxlift service.
package config

// LogLevel controls log verbosity for the voxlift server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxlift.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Capture   CaptureConfig   `yaml:"capture"`
	Confirm   ConfirmConfig   `yaml:"confirm"`
	Offline   OfflineConfig   `yaml:"offline"`
}

// ServerConfig holds network and logging settings for the voxlift server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the speech engines for each pipeline direction.
// Each entry names a provider registered in the [Registry]. When STT and TTS
// name the same engine, a single instance serves both directions — the
// browser bridge works this way.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered engine (e.g., "webspeech", "whisper",
	// "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the engine's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the engine's default API endpoint.
	// Leave empty to use the engine's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the engine (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Options holds engine-specific configuration values not covered by the
	// standard fields above (e.g., "model_path" for the native engine).
	Options map[string]any `yaml:"options"`
}

// CaptureConfig tunes the push-to-talk capture loop.
type CaptureConfig struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	Language string `yaml:"language"`

	// SampleRate is the capture sample rate in Hz. 0 uses the engine default.
	SampleRate int `yaml:"sample_rate"`

	// MaxUtteranceSeconds bounds a single capture. A capture still open
	// after this long is stopped and processed as-is. 0 uses the built-in
	// default.
	MaxUtteranceSeconds int `yaml:"max_utterance_seconds"`
}

// ConfirmConfig tunes the spoken-confirmation queue.
type ConfirmConfig struct {
	// Style selects the confirmation verbosity: "minimal", "concise", or
	// "detailed". Empty means concise.
	Style string `yaml:"style"`

	// MaxQueue bounds how many confirmations may wait to be spoken. 0 uses
	// the built-in default.
	MaxQueue int `yaml:"max_queue"`

	// MaxRetries is how many times a failed utterance is retried before it
	// is dropped.
	MaxRetries int `yaml:"max_retries"`
}

// OfflineConfig tunes the durable event queue and backend sync.
type OfflineConfig struct {
	// DataDir is the directory holding the local queue database. Required.
	DataDir string `yaml:"data_dir"`

	// BackendURL is the base URL of the workout backend
	// (e.g., "https://api.example.com"). Empty disables syncing entirely;
	// events accumulate locally.
	BackendURL string `yaml:"backend_url"`

	// APIToken is the bearer token sent on backend requests, if any.
	APIToken string `yaml:"api_token"`

	// SyncIntervalSeconds is how often a sync round runs while online.
	// 0 uses the built-in default of 30 seconds.
	SyncIntervalSeconds int `yaml:"sync_interval_seconds"`

	// MaxRetries is how many backend rejections an event survives before it
	// is marked permanently failed. 0 uses the built-in default of 5.
	MaxRetries int `yaml:"max_retries"`

	// MaxQueue caps the pending event queue. When exceeded, the oldest
	// low-priority events are evicted first; events carrying workout data
	// are always retained. 0 means unbounded.
	MaxQueue int `yaml:"max_queue"`
}
