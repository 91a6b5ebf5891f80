package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known engine names per pipeline direction.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"webspeech", "whisper", "openai"},
	"tts": {"webspeech"},
}

// validConfirmStyles are the accepted confirm.style values.
var validConfirmStyles = []string{"minimal", "concise", "detailed"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; confirmations will not be spoken")
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.MaxUtteranceSeconds < 0 {
		errs = append(errs, fmt.Errorf("capture.max_utterance_seconds %d is negative", cfg.Capture.MaxUtteranceSeconds))
	}

	// Confirm
	if cfg.Confirm.Style != "" && !slices.Contains(validConfirmStyles, cfg.Confirm.Style) {
		errs = append(errs, fmt.Errorf("confirm.style %q is invalid; valid values: minimal, concise, detailed", cfg.Confirm.Style))
	}
	if cfg.Confirm.MaxQueue < 0 {
		errs = append(errs, fmt.Errorf("confirm.max_queue %d is negative", cfg.Confirm.MaxQueue))
	}
	if cfg.Confirm.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("confirm.max_retries %d is negative", cfg.Confirm.MaxRetries))
	}

	// Offline
	if cfg.Offline.DataDir == "" {
		errs = append(errs, errors.New("offline.data_dir is required"))
	}
	if cfg.Offline.BackendURL != "" {
		if u, err := url.Parse(cfg.Offline.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("offline.backend_url %q is not an absolute URL", cfg.Offline.BackendURL))
		}
	} else {
		slog.Warn("offline.backend_url is empty; events will accumulate locally and never sync")
	}
	if cfg.Offline.SyncIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("offline.sync_interval_seconds %d is negative", cfg.Offline.SyncIntervalSeconds))
	}
	if cfg.Offline.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("offline.max_retries %d is negative", cfg.Offline.MaxRetries))
	}
	if cfg.Offline.MaxQueue < 0 {
		errs = append(errs, fmt.Errorf("offline.max_queue %d is negative", cfg.Offline.MaxQueue))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
