// Package health serves the liveness and readiness probes.
//
// The split matters for an offline-first service: /healthz says the process
// is up and serving HTTP, nothing more, while /readyz asks every registered
// [Checker] whether its dependency works. The workout backend is deliberately
// not a readiness dependency — being offline is a normal operating mode, and
// a restart would not fix it. The local queue database is the one thing the
// process genuinely cannot run without.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness dependency. Check returns nil when the
// dependency works and a descriptive error otherwise.
type Checker struct {
	// Name keys this check's entry in the /readyz response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Store builds a checker over the offline queue database. depth is
// typically (*offline.Store).QueueDepth; a query failure means the local
// database is broken, which is the one dependency this process cannot run
// without.
func Store(name string, depth func() (sessions, events int, err error)) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			_, _, err := depth()
			return err
		},
	}
}

// run evaluates the check under the probe timeout and reports the string
// that lands in the response: "ok", or "fail: " plus the cause.
func (c Checker) run(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := c.Check(ctx); err != nil {
		return "fail: " + err.Error(), false
	}
	return "ok", true
}

// Handler answers the probe endpoints. The checker list is fixed at
// construction, so it is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating the given checkers, in order, on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
}

// probeResponse is the JSON body both probes answer with.
type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthz always answers 200: a process serving HTTP is alive.
func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, probeResponse{Status: "ok"})
}

// readyz answers 200 only when every checker passes, 503 otherwise, with a
// per-check breakdown either way.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	resp := probeResponse{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		outcome, ok := c.run(r.Context())
		resp.Checks[c.Name] = outcome
		if !ok {
			resp.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}

	h.respond(w, status, resp)
}

func (h *Handler) respond(w http.ResponseWriter, status int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
