package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxlift/voxlift/internal/health"
	"github.com/voxlift/voxlift/internal/offline"
	"github.com/voxlift/voxlift/internal/session"
	"github.com/voxlift/voxlift/pkg/provider/stt"
)

// maxUploadBytes bounds batch transcription uploads, slightly above the
// network engine's own payload cap so the engine reports the precise error.
const maxUploadBytes = 30 << 20

// initRoutes builds the HTTP surface. Probes and metrics sit at the root;
// everything else is versioned under /v1.
func (a *App) initRoutes() {
	mux := http.NewServeMux()

	health.New(
		health.Store("store", a.store.QueueDepth),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// The browser bridge engine doubles as a WebSocket handler.
	if h, ok := a.engines.STT.(http.Handler); ok {
		mux.Handle("GET /v1/speech/bridge", h)
	} else if h, ok := a.engines.TTS.(http.Handler); ok {
		mux.Handle("GET /v1/speech/bridge", h)
	}

	mux.HandleFunc("POST /v1/capture/start", a.handleCaptureStart)
	mux.HandleFunc("POST /v1/capture/stop", a.handleCaptureStop)
	mux.HandleFunc("GET /v1/capture", a.handleCaptureState)

	mux.HandleFunc("POST /v1/transcribe", a.handleTranscribe)

	mux.HandleFunc("POST /v1/sessions", a.handleSessionStart)
	mux.HandleFunc("POST /v1/sessions/{id}/end", a.handleSessionEnd)

	mux.HandleFunc("GET /v1/sync", a.handleSyncStatus)
	mux.HandleFunc("POST /v1/sync", a.handleSyncNow)

	mux.HandleFunc("GET /v1/conflicts", a.handleConflictList)
	mux.HandleFunc("POST /v1/conflicts/{id}", a.handleConflictResolve)

	a.mux = mux
}

// Handler returns the HTTP surface for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.instrument(a.mux)
}

// runContext is the lifetime context background work is bound to. Request
// contexts die with the request, so anything that outlives a handler (an
// open capture, most notably) derives from this instead.
func (a *App) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseCtx
}

// ─── Capture ─────────────────────────────────────────────────────────────────

func (a *App) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	if a.capture == nil {
		httpError(w, http.StatusNotImplemented, "configured engine does not stream")
		return
	}
	if err := a.capture.Start(a.runContext()); err != nil {
		switch {
		case errors.Is(err, session.ErrBusy):
			httpError(w, http.StatusConflict, err.Error())
		default:
			httpError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": a.capture.State().String()})
}

func (a *App) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if a.capture == nil {
		httpError(w, http.StatusNotImplemented, "configured engine does not stream")
		return
	}
	if err := a.capture.Stop(); err != nil {
		if errors.Is(err, session.ErrNotListening) {
			httpError(w, http.StatusConflict, err.Error())
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": a.capture.State().String()})
}

func (a *App) handleCaptureState(w http.ResponseWriter, _ *http.Request) {
	state := "unavailable"
	if a.capture != nil {
		state = a.capture.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

// ─── Batch transcription ─────────────────────────────────────────────────────

// transcribeResponse is the body returned by POST /v1/transcribe.
type transcribeResponse struct {
	Transcript        string  `json:"transcript"`
	Confidence        float64 `json:"confidence"`
	Kind              string  `json:"kind"`
	IntentConfidence  float64 `json:"intent_confidence"`
	NeedsConfirmation bool    `json:"needs_confirmation"`
	Committed         bool    `json:"committed"`
}

// handleTranscribe accepts a finished audio recording, transcribes it with
// the batch engine, and feeds the transcript through the same intent path a
// live capture takes.
func (a *App) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if a.batch == nil {
		httpError(w, http.StatusNotImplemented, "configured engine does not transcribe recordings")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	start := time.Now()
	result, err := a.batch.Transcribe(r.Context(), body, stt.TranscribeOptions{
		Language: a.cfg.Capture.Language,
		Prompt:   a.domainPrompt(),
		MimeType: r.Header.Get("Content-Type"),
	})
	a.metrics.STTDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderRequest(r.Context(), a.batch.Name(), "transcribe", "error")
		switch {
		case errors.Is(err, stt.ErrPayloadTooLarge):
			httpError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, stt.ErrTimeout):
			httpError(w, http.StatusGatewayTimeout, err.Error())
		default:
			httpError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	a.metrics.RecordProviderRequest(r.Context(), a.batch.Name(), "transcribe", "ok")

	parseStart := time.Now()
	in := a.parser.Parse(result.Text, a.intentContext())
	a.metrics.ParseDuration.Record(r.Context(), time.Since(parseStart).Seconds())

	a.handleResult(r.Context(), session.Result{
		Transcript: result.Text,
		Confidence: result.Confidence,
		Intent:     in,
	})

	writeJSON(w, http.StatusOK, transcribeResponse{
		Transcript:        result.Text,
		Confidence:        result.Confidence,
		Kind:              string(in.Kind),
		IntentConfidence:  in.Confidence,
		NeedsConfirmation: in.NeedsConfirmation,
		Committed:         !in.NeedsConfirmation,
	})
}

// ─── Sessions ────────────────────────────────────────────────────────────────

type sessionStartRequest struct {
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata"`
}

func (a *App) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Type == "" {
		req.Type = "workout"
	}

	sess, err := a.startSession(r.Context(), req.Type, req.Metadata)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     sess.ID,
		"type":   sess.Type,
		"status": string(sess.Status),
	})
}

func (a *App) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.endSession(id); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "ended"})
}

// ─── Sync ────────────────────────────────────────────────────────────────────

func (a *App) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	sessions, events, err := a.store.QueueDepth()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	retries, err := a.store.RetryBacklog()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":            a.manager.State().String(),
		"pending_sessions": sessions,
		"pending_events":   events,
		"retry_count":      retries,
		"max_retries":      a.manager.MaxRetries(),
	})
}

func (a *App) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	if a.client == nil {
		httpError(w, http.StatusNotImplemented, "no backend configured")
		return
	}
	start := time.Now()
	res, err := a.manager.Sync(r.Context())
	a.metrics.SyncDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, offline.ErrSyncInProgress) {
			httpError(w, http.StatusConflict, err.Error())
			return
		}
		httpError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "synced",
		"sessions_synced": res.SessionsSynced,
		"events_synced":   res.EventsSynced,
		"retried":         res.Retried,
		"failed":          res.Failed,
		"conflicted":      res.Conflicted,
		"deferred":        res.Deferred,
	})
}

// ─── Conflicts ───────────────────────────────────────────────────────────────

func (a *App) handleConflictList(w http.ResponseWriter, _ *http.Request) {
	events, err := a.store.ConflictedEvents()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type entry struct {
		ID         string          `json:"id"`
		SessionID  string          `json:"session_id"`
		Kind       string          `json:"kind"`
		Transcript string          `json:"transcript,omitempty"`
		Payload    json.RawMessage `json:"payload"`
	}
	out := make([]entry, 0, len(events))
	for _, ev := range events {
		out = append(out, entry{
			ID:         ev.ID,
			SessionID:  ev.SessionID,
			Kind:       ev.Kind,
			Transcript: offline.DecompressTranscript(ev.Transcript),
			Payload:    ev.Payload,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": out})
}

type conflictResolveRequest struct {
	Retry bool `json:"retry"`
}

func (a *App) handleConflictResolve(w http.ResponseWriter, r *http.Request) {
	var req conflictResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	id := r.PathValue("id")
	if err := a.manager.ResolveConflict(id, req.Retry); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	action := "discarded"
	if req.Retry {
		action = "requeued"
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "resolution": action})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: response encode failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
