// Package health exposes liveness and readiness probes for the service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// CheckStatus reports the state of one dependency.
type CheckStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the body returned by the main health endpoint.
type Response struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

// Handler serves the health, readiness and liveness endpoints.
type Handler struct {
	db      *sqlx.DB
	poller  func() error
	timeout time.Duration

	mu    sync.RWMutex
	ready bool
}

// Config configures a health Handler. Poller is optional: when set it is
// consulted on the health endpoint so a stalled mailbox poll surfaces as
// degraded instead of silently stopping ingestion.
type Config struct {
	DB      *sqlx.DB
	Poller  func() error
	Timeout time.Duration
}

func NewHandler(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Handler{
		db:      cfg.DB,
		poller:  cfg.Poller,
		timeout: timeout,
		ready:   true,
	}
}

// SetReady flips the readiness state, used during graceful shutdown so load
// balancers drain the instance before the listener closes.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

func (h *Handler) isReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Health reports overall service status with per-dependency detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]CheckStatus{
		"database": h.checkDatabase(ctx),
	}
	if h.poller != nil {
		checks["poller"] = h.checkPoller()
	}

	status := "healthy"
	for _, c := range checks {
		if c.Status != "up" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, statusCode(status == "healthy"), Response{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// Readiness reports whether the instance should receive traffic. The
// database must be reachable; the poller is intentionally excluded so a
// flaky upstream mailbox does not take the read API out of rotation.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ready := h.isReady()
	if ready && h.checkDatabase(ctx).Status != "up" {
		ready = false
	}

	writeJSON(w, statusCode(ready), map[string]any{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Liveness answers as long as the process can serve HTTP.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"alive":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkDatabase(ctx context.Context) CheckStatus {
	if h.db == nil {
		return CheckStatus{Status: "down", Error: "database not configured"}
	}
	start := time.Now()
	err := h.db.PingContext(ctx)
	latency := time.Since(start)
	if err != nil {
		return CheckStatus{Status: "down", Latency: latency.String(), Error: err.Error()}
	}
	return CheckStatus{Status: "up", Latency: latency.String()}
}

func (h *Handler) checkPoller() CheckStatus {
	if err := h.poller(); err != nil {
		return CheckStatus{Status: "down", Error: err.Error()}
	}
	return CheckStatus{Status: "up"}
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
