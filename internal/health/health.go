// Package health serves liveness and readiness probes.
//
//   - /healthz: liveness; always 200 while the process serves HTTP.
//   - /readyz: readiness; 200 unless a required [Checker] fails. Failing
//     optional checkers mark the service "degraded" but keep it ready.
//
// Responses are JSON objects with a "status" field ("ok", "degraded" or
// "fail") and, for readiness, a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	// Name labels the check in the response (e.g. "store", "ffmpeg").
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error

	// Optional marks a dependency only some requests need. Its failure is
	// reported as "degraded" and does not fail readiness.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New returns a Handler that runs checkers concurrently on every /readyz
// request, each bounded by [DefaultCheckTimeout].
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...), timeout: DefaultCheckTimeout}
}

// WithTimeout returns h with the per-check timeout set to d.
func (h *Handler) WithTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 503 when a required checker fails and 200 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu       sync.Mutex
		checks   = make(map[string]string, len(h.checkers))
		allOK    = true
		degraded = false
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && c.Optional:
				checks[c.Name] = "degraded: " + err.Error()
				degraded = true
			case err != nil:
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			default:
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	switch {
	case !allOK:
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	case degraded:
		res.Status = "degraded"
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
