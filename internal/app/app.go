// Package app wires all voxlift subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the serving loops, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithCatalogue, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/voxlift/voxlift/internal/config"
	"github.com/voxlift/voxlift/internal/confirm"
	"github.com/voxlift/voxlift/internal/intent"
	"github.com/voxlift/voxlift/internal/observe"
	"github.com/voxlift/voxlift/internal/offline"
	"github.com/voxlift/voxlift/internal/session"
	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/stt"
	"github.com/voxlift/voxlift/pkg/provider/tts"
)

// Engines holds the speech engines created by main.go via the config
// registry. STT and TTS may be the same instance — the browser bridge serves
// both directions.
type Engines struct {
	STT provider.Info
	TTS provider.Info
}

// App owns all subsystem lifetimes and orchestrates the voice logging
// pipeline: capture → intent → durable event queue → spoken confirmation.
type App struct {
	cfg     *config.Config
	engines Engines
	metrics *observe.Metrics

	// Engine faces, resolved from capabilities. Nil when the configured
	// engine does not support that access pattern.
	stream  stt.StreamingTranscriber
	batch   stt.Transcriber
	speaker tts.Speaker

	store     *offline.Store
	client    *offline.Client
	manager   *offline.Manager
	catalogue *intent.Catalogue
	parser    *intent.Parser
	queue     *confirm.Queue
	capture   *session.Capture

	mux *http.ServeMux

	// mu guards the mutable serving state below.
	mu            sync.Mutex
	activeSession string
	baseCtx       context.Context

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an event store instead of opening one from config.
func WithStore(s *offline.Store) Option {
	return func(a *App) { a.store = s }
}

// WithClient injects a backend client instead of creating one from config.
func WithClient(c *offline.Client) Option {
	return func(a *App) { a.client = c }
}

// WithCatalogue injects an exercise catalogue instead of the built-in one.
func WithCatalogue(c *intent.Catalogue) Option {
	return func(a *App) { a.catalogue = c }
}

// WithMetrics injects a metrics instance instead of the process-global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The engines struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(cfg *config.Config, engines Engines, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		engines: engines,
		baseCtx: context.Background(),
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initEngines(); err != nil {
		return nil, fmt.Errorf("app: init engines: %w", err)
	}
	if err := a.initOffline(); err != nil {
		return nil, fmt.Errorf("app: init offline queue: %w", err)
	}
	a.initIntent()
	a.initConfirm()
	a.initCapture()
	a.initRoutes()

	return a, nil
}

// initEngines resolves the streaming, batch, and synthesis faces of the
// configured engines from their declared capabilities.
func (a *App) initEngines() error {
	eng := a.engines.STT
	if eng == nil {
		return errors.New("no speech engine configured")
	}

	if provider.Has(eng, provider.CapStream) {
		s, ok := eng.(stt.StreamingTranscriber)
		if !ok {
			return fmt.Errorf("engine %q declares streaming but does not implement it", eng.Name())
		}
		a.stream = s
	}
	if provider.Has(eng, provider.CapTranscribe) {
		b, ok := eng.(stt.Transcriber)
		if !ok {
			return fmt.Errorf("engine %q declares batch transcription but does not implement it", eng.Name())
		}
		a.batch = b
	}
	if a.stream == nil && a.batch == nil {
		return fmt.Errorf("engine %q supports neither streaming nor batch transcription", eng.Name())
	}

	if a.engines.TTS != nil && provider.Has(a.engines.TTS, provider.CapSpeak) {
		sp, ok := a.engines.TTS.(tts.Speaker)
		if !ok {
			return fmt.Errorf("engine %q declares speech synthesis but does not implement it", a.engines.TTS.Name())
		}
		a.speaker = sp
	}
	if a.speaker == nil {
		slog.Warn("no synthesis-capable engine configured; confirmations will not be spoken")
	}

	// Engines holding real resources (the whisper model, most notably) get
	// released on Shutdown. STT and TTS may be the same instance; close once.
	if c, ok := a.engines.STT.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	if c, ok := a.engines.TTS.(io.Closer); ok && a.engines.TTS != a.engines.STT {
		a.closers = append(a.closers, c.Close)
	}

	return nil
}

// initOffline opens the durable queue and, when a backend is configured,
// the client and sync manager.
func (a *App) initOffline() error {
	if a.store == nil {
		store, err := offline.OpenStore(a.cfg.Offline.DataDir,
			offline.WithMaxEvents(a.cfg.Offline.MaxQueue))
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	if a.client == nil && a.cfg.Offline.BackendURL != "" {
		var copts []offline.ClientOption
		if a.cfg.Offline.APIToken != "" {
			copts = append(copts, offline.WithAPIToken(a.cfg.Offline.APIToken))
		}
		a.client = offline.NewClient(a.cfg.Offline.BackendURL, copts...)
	}

	mopts := []offline.ManagerOption{
		offline.WithConflictHandler(a.handleConflict),
	}
	if a.cfg.Offline.SyncIntervalSeconds > 0 {
		mopts = append(mopts, offline.WithSyncInterval(time.Duration(a.cfg.Offline.SyncIntervalSeconds)*time.Second))
	}
	if a.cfg.Offline.MaxRetries > 0 {
		mopts = append(mopts, offline.WithMaxRetries(a.cfg.Offline.MaxRetries))
	}
	a.manager = offline.NewManager(a.store, a.client, mopts...)

	return nil
}

// initIntent builds the exercise catalogue and the utterance parser.
func (a *App) initIntent() {
	if a.catalogue == nil {
		a.catalogue = intent.DefaultCatalogue()
	}
	a.parser = intent.NewParser(a.catalogue)
}

// initConfirm builds the spoken-confirmation queue when a synthesizer is
// available.
func (a *App) initConfirm() {
	if a.speaker == nil {
		return
	}
	var qopts []confirm.Option
	if a.cfg.Confirm.Style != "" {
		qopts = append(qopts, confirm.WithStyle(confirm.Style(a.cfg.Confirm.Style)))
	}
	if a.cfg.Confirm.MaxQueue > 0 {
		qopts = append(qopts, confirm.WithMaxSize(a.cfg.Confirm.MaxQueue))
	}
	if a.cfg.Confirm.MaxRetries > 0 {
		qopts = append(qopts, confirm.WithMaxRetries(a.cfg.Confirm.MaxRetries))
	}
	a.queue = confirm.New(a.speaker, qopts...)
}

// initCapture builds the push-to-talk capture loop when the engine streams.
func (a *App) initCapture() {
	if a.stream == nil {
		return
	}

	streamCfg := stt.StreamConfig{
		SampleRate: a.cfg.Capture.SampleRate,
		Channels:   1,
		Language:   a.cfg.Capture.Language,
		Keywords:   a.keywordBoosts(),
	}

	copts := []session.Option{
		session.WithStreamConfig(streamCfg),
		session.WithContextFunc(a.intentContext),
	}
	if a.cfg.Capture.MaxUtteranceSeconds > 0 {
		copts = append(copts, session.WithMaxUtterance(time.Duration(a.cfg.Capture.MaxUtteranceSeconds)*time.Second))
	}
	a.capture = session.NewCapture(a.stream, a.parser, copts...)
}

// keywordBoosts turns the catalogue into recognition hints so engines bias
// toward gym vocabulary.
func (a *App) keywordBoosts() []stt.KeywordBoost {
	names := a.catalogue.Names()
	boosts := make([]stt.KeywordBoost, len(names))
	for i, n := range names {
		boosts[i] = stt.KeywordBoost{Keyword: n, Boost: 1}
	}
	return boosts
}

// domainPrompt is the adaptation string sent with batch transcriptions.
func (a *App) domainPrompt() string {
	return "Workout logging dictation. Exercise vocabulary: " +
		strings.Join(a.catalogue.Names(), ", ") + "."
}

// intentContext snapshots the conversational state the parser uses to fill
// implicit slots.
func (a *App) intentContext() intent.Context {
	a.mu.Lock()
	active := a.activeSession
	a.mu.Unlock()

	ictx := intent.Context{ActiveSession: active != ""}
	if active != "" {
		ictx.LastExercise = a.manager.LastExercise(active)
	}
	return ictx
}

// handleConflict is invoked by the sync manager when the backend answers 409.
// The event is already parked; surface it to the user and leave resolution
// to an explicit /v1/conflicts call.
func (a *App) handleConflict(ev offline.Event, cerr *offline.ConflictError) {
	slog.Warn("app: sync conflict parked for review",
		"event_id", ev.ID, "kind", ev.Kind, "detail", cerr.Detail)
	if a.queue != nil {
		a.queue.Enqueue("A logged set conflicts with the server copy. Review it when you get a chance.", confirm.PriorityNormal)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP server and all background loops, blocking until ctx is
// cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.instrument(a.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("app: http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.queue != nil {
		g.Go(func() error {
			if err := a.queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.client != nil {
		g.Go(func() error {
			if err := a.manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		slog.Info("app: no backend configured; events will accumulate locally")
	}
	if a.capture != nil {
		g.Go(func() error {
			a.consumeResults(ctx)
			return nil
		})
	}

	slog.Info("app: running",
		"engine", a.engines.STT.Name(),
		"streaming", a.stream != nil,
		"batch", a.batch != nil,
		"synthesis", a.speaker != nil,
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consumeResults drains finished captures and commits them to the pipeline.
func (a *App) consumeResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-a.capture.Results():
			if !ok {
				return
			}
			a.handleResult(ctx, res)
		}
	}
}

// handleResult processes one finished capture: commit the intent to the
// offline queue (unless it needs confirmation first) and speak a read-back.
func (a *App) handleResult(ctx context.Context, res session.Result) {
	ctx, span := observe.Tracer().Start(ctx, "voxlift.handle_result")
	defer span.End()

	if res.Err != nil {
		slog.Warn("app: capture ended with error", "error", res.Err)
		a.metrics.RecordProviderError(ctx, a.engines.STT.Name(), "stream")
	}

	in := res.Intent
	a.metrics.RecordIntentParse(ctx, string(in.Kind), in.NeedsConfirmation)
	slog.Info("app: utterance parsed",
		"kind", in.Kind,
		"confidence", in.Confidence,
		"needs_confirmation", in.NeedsConfirmation,
		"transcript", res.Transcript,
	)

	// Low-confidence interpretations are read back as a question and not
	// committed; the speaker repeats or corrects themselves.
	if !in.NeedsConfirmation {
		if err := a.commitIntent(ctx, in, res.Transcript); err != nil {
			slog.Error("app: commit failed", "kind", in.Kind, "error", err)
		}
	}

	if a.queue != nil {
		a.queue.ConfirmIntent(in)
		a.metrics.RecordConfirmation(ctx, "normal", "enqueued")
	}
}

// commitIntent applies a confident intent to the session and event queue.
func (a *App) commitIntent(ctx context.Context, in intent.Intent, transcript string) error {
	switch in.Kind {
	case intent.KindStartWorkout:
		var metadata map[string]string
		if in.Params.Title != "" {
			metadata = map[string]string{"title": in.Params.Title}
		}
		_, err := a.startSession(ctx, "workout", metadata)
		return err

	case intent.KindLogSet, intent.KindEditLast, intent.KindUndoLast, intent.KindRestTimer:
		sessionID, err := a.ensureSession(ctx)
		if err != nil {
			return err
		}
		_, err = a.manager.RecordEvent(
			sessionID,
			string(in.Kind),
			payloadFromIntent(in),
			transcript,
			in.Confidence,
			in.Params.Exercise,
		)
		if err == nil {
			a.metrics.QueuedEvents.Add(ctx, 1)
		}
		return err

	case intent.KindExerciseMention, intent.KindUnknown:
		// Nothing to commit; mentions only steer context via the parser's
		// read of the active session, and unknowns are dropped.
		return nil
	}
	return nil
}

// startSession opens a workout session and makes it the active one.
func (a *App) startSession(ctx context.Context, sessionType string, metadata map[string]string) (offline.Session, error) {
	sess, err := a.manager.StartSession(ctx, sessionType, metadata)
	if err != nil {
		return offline.Session{}, err
	}
	a.mu.Lock()
	a.activeSession = sess.ID
	a.mu.Unlock()
	slog.Info("app: workout session started", "session_id", sess.ID)
	return sess, nil
}

// ensureSession returns the active session, starting one implicitly when the
// speaker begins logging without saying "start workout" first.
func (a *App) ensureSession(ctx context.Context) (string, error) {
	a.mu.Lock()
	active := a.activeSession
	a.mu.Unlock()
	if active != "" {
		return active, nil
	}

	sess, err := a.startSession(ctx, "workout", map[string]string{"started": "implicit"})
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// endSession closes the given session and clears it if it was active.
func (a *App) endSession(sessionID string) error {
	if err := a.manager.EndSession(sessionID); err != nil {
		return err
	}
	a.mu.Lock()
	if a.activeSession == sessionID {
		a.activeSession = ""
	}
	a.mu.Unlock()
	slog.Info("app: workout session ended", "session_id", sessionID)
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "error", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// eventPayload is the JSON body stored with a logged event. The alternatives
// field is stripped before transmission to the backend.
type eventPayload struct {
	Exercise     string       `json:"exercise,omitempty"`
	ExerciseID   string       `json:"exercise_id,omitempty"`
	Inferred     bool         `json:"inferred,omitempty"`
	Reps         int          `json:"reps,omitempty"`
	Weight       float64      `json:"weight,omitempty"`
	WeightUnit   string       `json:"weight_unit,omitempty"`
	RPE          float64      `json:"rpe,omitempty"`
	RestSeconds  int          `json:"rest_seconds,omitempty"`
	Alternatives []altPayload `json:"alternatives,omitempty"`
}

type altPayload struct {
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Exercise   string  `json:"exercise,omitempty"`
	Reps       int     `json:"reps,omitempty"`
}

// payloadFromIntent flattens the parsed slots into the stored event body.
func payloadFromIntent(in intent.Intent) eventPayload {
	p := eventPayload{
		Exercise:    in.Params.Exercise,
		ExerciseID:  in.Params.ExerciseID,
		Inferred:    in.Params.ExerciseInferred,
		RestSeconds: in.Params.RestSeconds,
	}
	if in.Params.HasReps {
		p.Reps = in.Params.Reps
	}
	if in.Params.Weight != nil {
		p.Weight = in.Params.Weight.Value
		p.WeightUnit = string(in.Params.Weight.Unit)
	}
	if in.Params.HasRPE {
		p.RPE = in.Params.RPE
	}
	for _, alt := range in.Alternatives {
		p.Alternatives = append(p.Alternatives, altPayload{
			Kind:       string(alt.Kind),
			Confidence: alt.Confidence,
			Exercise:   alt.Params.Exercise,
			Reps:       alt.Params.Reps,
		})
	}
	return p
}

// metricAttrs builds the standard HTTP attribute set.
func metricAttrs(method, path string) metric.MeasurementOption {
	return metric.WithAttributes(
		observe.Attr("method", method),
		observe.Attr("path", path),
	)
}

// instrument wraps the mux with request latency recording.
func (a *App) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metricAttrs(r.Method, r.URL.Path),
		)
	})
}
