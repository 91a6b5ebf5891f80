// Package openai provides the network batch STT engine backed by the OpenAI
// audio transcription API.
//
// This engine trades latency for accuracy: it only accepts finalized audio
// (no streaming, no interim results), requires network and an API
// credential, and enforces the API's maximum payload size. A
// domain-adaptation prompt biases recognition toward fitness vocabulary so
// "RDL" does not come back as "are dee ell".
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/stt"
)

const (
	// maxPayloadBytes is the OpenAI audio endpoint upload limit (25 MB).
	maxPayloadBytes = 25 << 20

	defaultModel   = oai.AudioModelWhisper1
	defaultTimeout = 30 * time.Second

	// defaultPrompt biases recognition toward workout vocabulary.
	defaultPrompt = "Workout logging: exercises like bench press, squat, deadlift, " +
		"overhead press, Romanian deadlift; reps, sets, RPE, pounds, kilograms."
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*config)

// config holds optional construction parameters.
type config struct {
	baseURL string
	model   oai.AudioModel
	timeout time.Duration
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model (e.g., "whisper-1").
func WithModel(model string) Option {
	return func(c *config) { c.model = oai.AudioModel(model) }
}

// WithTimeout bounds each transcription request. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements stt.Transcriber using the OpenAI transcription API.
type Provider struct {
	client  oai.Client
	model   oai.AudioModel
	timeout time.Duration
}

// New constructs a new OpenAI transcription Provider. apiKey must be
// non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}

	cfg := &config{
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.model,
		timeout: cfg.timeout,
	}, nil
}

// Name implements provider.Info.
func (p *Provider) Name() string { return "openai" }

// Capabilities implements provider.Info. The API is batch-only: no
// streaming, no synthesis on this provider.
func (p *Provider) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapTranscribe}
}

// Transcribe submits the complete audio recording and returns the final
// transcript. Payloads over the API limit return [stt.ErrPayloadTooLarge];
// requests exceeding the configured timeout return [stt.ErrTimeout].
func (p *Provider) Transcribe(ctx context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Result, error) {
	// Buffer the audio so the size cap is enforced before any bytes hit the
	// network. One extra byte past the limit is enough to reject.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(audio, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("openai: read audio: %w", err)
	}
	if n > maxPayloadBytes {
		return nil, fmt.Errorf("openai: payload %d bytes: %w", n, stt.ErrPayloadTooLarge)
	}
	if n == 0 {
		return nil, errors.New("openai: empty audio payload")
	}

	prompt := opts.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	mime := opts.MimeType
	if mime == "" {
		mime = "audio/wav"
	}

	params := oai.AudioTranscriptionNewParams{
		File:   oai.File(&buf, "utterance.wav", mime),
		Model:  p.model,
		Prompt: oai.String(prompt),
	}
	if opts.Language != "" {
		params.Language = oai.String(opts.Language)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Audio.Transcriptions.New(reqCtx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("openai: %w: %v", stt.ErrTimeout, err)
		}
		return nil, fmt.Errorf("openai: transcribe: %w", err)
	}

	return &stt.Result{
		Text:     resp.Text,
		Language: opts.Language,
	}, nil
}
