// Package whisper provides the fully offline on-device STT engine backed by
// the whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// whisper.cpp is a batch inference engine, so continuous listening is
// simulated: incoming PCM is buffered, an energy-based silence detector
// segments utterances, and each completed utterance runs one inference. A
// partial and a final are emitted for the same text when an utterance
// commits — enough to drive transcript previews while the Finals channel
// feeds the intent parser.
//
// Recognition works with no network at all, which is what makes this the
// engine of choice for gym basements.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the signed little-endian PCM audio
	// whisper.cpp expects.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit
	// PCM units) below which audio counts as silence. 300 of a possible
	// 32767 is near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// Compile-time interface assertions.
var (
	_ stt.Transcriber          = (*Provider)(nil)
	_ stt.StreamingTranscriber = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the audio sample rate in Hz. Must match the PCM data
// delivered via SendAudio. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// triggers a flush of the accumulated speech buffer. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before a forced flush regardless of silence. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// Provider implements stt.Transcriber and stt.StreamingTranscriber using the
// whisper.cpp Go bindings. The model is loaded once at startup and shared
// across all sessions.
type Provider struct {
	model    whisperlib.Model
	language string

	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// New creates a Provider that loads the whisper.cpp model from modelPath.
// The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements provider.Info.
func (p *Provider) Name() string { return "whisper" }

// Capabilities implements provider.Info.
func (p *Provider) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapTranscribe, provider.CapStream}
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs a single batch inference over a complete raw PCM recording
// (16-bit signed little-endian mono at the configured sample rate).
func (p *Provider) Transcribe(ctx context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	pcm, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("whisper: read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("whisper: empty audio payload")
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	text, err := infer(p.model, lang, samples(pcm, 1))
	if err != nil {
		return nil, err
	}

	sampleCount := len(pcm) / (bitsPerSample / 8)
	return &stt.Result{
		Text:     text,
		Language: lang,
		Duration: time.Duration(sampleCount) * time.Second / time.Duration(p.sampleRate),
	}, nil
}

// StartStream opens a new pseudo-streaming transcription session. Each
// session creates its own whisper.cpp context per inference, so multiple
// sessions can run concurrently against the shared model.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		model:               p.model,
		language:            lang,
		sampleRate:          sr,
		channels:            ch,
		silenceThresholdMs:  p.silenceThresholdMs,
		maxBufferDurationMs: p.maxBufferDurationMs,

		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// session is a live on-device transcription session. All mutable state that
// drives silence detection and buffering is confined to the processLoop
// goroutine.
type session struct {
	model               whisperlib.Model
	language            string
	sampleRate          int
	channels            int
	silenceThresholdMs  int
	maxBufferDurationMs int

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

// SendAudio queues a chunk of raw 16-bit little-endian signed PCM audio for
// silence analysis and buffering.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

// Partials returns the interim transcript channel.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the authoritative transcript channel.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close terminates the session, flushes any pending speech audio, and closes
// the transcript channels.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop is the single goroutine responsible for silence detection,
// audio buffering, and inference dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferDurationMs * bytesPerMs

	doFlush := func() {
		if len(buffer) == 0 || !hadSpeech {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return
		}

		pcm := buffer
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		text, err := infer(s.model, s.language, samples(pcm, s.channels))
		if err != nil {
			slog.Error("whisper inference failed", "error", err)
			return
		}
		if text == "" {
			return
		}

		select {
		case s.partials <- stt.Transcript{Text: text, IsFinal: false}:
		default:
		}
		select {
		case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			doFlush()
			return

		case <-s.done:
			doFlush()
			return

		case chunk, ok := <-s.audioCh:
			if !ok {
				doFlush()
				return
			}

			rms := computeRMS(chunk)
			chunkMs := chunkDurationMs(chunk, s.sampleRate, s.channels)

			if rms < defaultRMSThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.silenceThresholdMs {
						doFlush()
					}
				}
			} else {
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					doFlush()
				}
			}
		}
	}
}

// infer runs whisper.cpp inference on float32 samples using a fresh context.
// Contexts are not thread-safe but the model can be shared across goroutines.
func infer(model whisperlib.Model, language string, samples []float32) (string, error) {
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// computeRMS returns the root-mean-square amplitude of 16-bit signed
// little-endian PCM audio.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}

// chunkDurationMs returns the playback duration of a PCM chunk in
// milliseconds.
func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	bytesPerMs := sampleRate * channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		return 0
	}
	return len(chunk) / bytesPerMs
}
