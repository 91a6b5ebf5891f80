// Command voxlift is the main entry point for the voxlift voice workout
// logging service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxlift/voxlift/internal/app"
	"github.com/voxlift/voxlift/internal/config"
	"github.com/voxlift/voxlift/internal/observe"
	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/stt/openai"
	"github.com/voxlift/voxlift/pkg/provider/stt/webspeech"
	"github.com/voxlift/voxlift/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxlift: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxlift: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxlift starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxlift",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Engine registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	engines, err := buildEngines(cfg, reg)
	if err != nil {
		slog.Error("failed to build speech engines", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, engines)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Engine wiring ─────────────────────────────────────────────────────────────

// registerBuiltinEngines wires all built-in engine factories into reg. Each
// factory receives a config.ProviderEntry and constructs the engine from the
// real implementation packages.
func registerBuiltinEngines(reg *config.Registry) {
	// The browser bridge streams recognition and synthesizes speech over one
	// WebSocket connection.
	reg.RegisterEngine("webspeech", func(entry config.ProviderEntry) (provider.Info, error) {
		var opts []webspeech.Option
		if origins := optStrings(entry.Options, "origin_patterns"); len(origins) > 0 {
			opts = append(opts, webspeech.WithOriginPatterns(origins...))
		}
		return webspeech.New(opts...), nil
	})

	// The native engine runs a local whisper.cpp model.
	reg.RegisterEngine("whisper", func(entry config.ProviderEntry) (provider.Info, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	// The network engine sends finished recordings to the OpenAI
	// transcription API.
	reg.RegisterEngine("openai", func(entry config.ProviderEntry) (provider.Info, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		return openai.New(entry.APIKey, opts...)
	})
}

// buildEngines instantiates the engines named in cfg. When STT and TTS name
// the same engine, one instance serves both directions.
func buildEngines(cfg *config.Config, reg *config.Registry) (app.Engines, error) {
	engines := app.Engines{}

	sttName := cfg.Providers.STT.Name
	eng, err := reg.CreateEngine(cfg.Providers.STT)
	if err != nil {
		return engines, fmt.Errorf("create engine %q: %w", sttName, err)
	}
	engines.STT = eng
	slog.Info("engine created", "kind", "stt", "name", sttName)

	if ttsName := cfg.Providers.TTS.Name; ttsName != "" {
		if ttsName == sttName {
			engines.TTS = eng
		} else {
			teng, err := reg.CreateEngine(cfg.Providers.TTS)
			if err != nil {
				return engines, fmt.Errorf("create engine %q: %w", ttsName, err)
			}
			engines.TTS = teng
		}
		slog.Info("engine created", "kind", "tts", "name", ttsName)
	}

	return engines, nil
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from an engine Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a string list from an engine Options map. YAML decodes
// sequences as []any, so each element is asserted individually.
func optStrings(opts map[string]any, key string) []string {
	if opts == nil {
		return nil
	}
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
