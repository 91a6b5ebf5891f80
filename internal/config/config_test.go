package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/voxlift/voxlift/internal/config"
	"github.com/voxlift/voxlift/pkg/provider"
)

const fullConfig = `
server:
  listen_addr: ":8080"
  log_level: debug
providers:
  stt:
    name: webspeech
  tts:
    name: webspeech
capture:
  language: en-US
  sample_rate: 16000
  max_utterance_seconds: 30
confirm:
  style: detailed
  max_queue: 16
  max_retries: 2
offline:
  data_dir: /var/lib/voxlift
  backend_url: https://api.example.com
  api_token: secret
  sync_interval_seconds: 30
  max_retries: 5
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.STT.Name != "webspeech" || cfg.Providers.TTS.Name != "webspeech" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Capture.MaxUtteranceSeconds != 30 {
		t.Errorf("MaxUtteranceSeconds = %d", cfg.Capture.MaxUtteranceSeconds)
	}
	if cfg.Confirm.Style != "detailed" {
		t.Errorf("Style = %q", cfg.Confirm.Style)
	}
	if cfg.Offline.SyncIntervalSeconds != 30 || cfg.Offline.MaxRetries != 5 {
		t.Errorf("offline = %+v", cfg.Offline)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":8080"
  listne_addr_typo: ":8081"
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
providers:
  stt:
    name: ""
confirm:
  style: shouty
  max_retries: -1
offline:
  data_dir: ""
  backend_url: "not a url"
`))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{
		"server.log_level",
		"providers.stt.name",
		"confirm.style",
		"confirm.max_retries",
		"offline.data_dir",
		"offline.backend_url",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s:\n%v", want, err)
		}
	}
}

// fakeEngine is a minimal provider.Info for registry tests.
type fakeEngine struct{ name string }

func (f *fakeEngine) Name() string                        { return f.name }
func (f *fakeEngine) Capabilities() []provider.Capability { return nil }

func TestRegistry_CreateEngine(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterEngine("fake", func(entry config.ProviderEntry) (provider.Info, error) {
		return &fakeEngine{name: entry.Name}, nil
	})

	eng, err := reg.CreateEngine(config.ProviderEntry{Name: "fake"})
	if err != nil {
		t.Fatalf("CreateEngine: %v", err)
	}
	if eng.Name() != "fake" {
		t.Errorf("Name = %q", eng.Name())
	}

	_, err = reg.CreateEngine(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEngine(missing) = %v, want ErrProviderNotRegistered", err)
	}
}
