package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// Pinger is the slice of the repository the health checker depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides liveness and readiness endpoints for probes.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	store        Pinger
	startTime    time.Time
}

// NewHealthChecker creates a health checker backed by the given store.
// The server starts ready.
func NewHealthChecker(store Pinger) *HealthChecker {
	h := &HealthChecker{
		store:     store,
		startTime: time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// MarkShuttingDown flips readiness off permanently for drain.
func (h *HealthChecker) MarkShuttingDown() {
	h.shuttingDown.Store(true)
	h.ready.Store(false)
}

// healthResponse is the JSON body of every probe endpoint.
type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler serves /healthz. Liveness only says the process runs.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: healthStatusOK})
	}
}

// HealthHandler serves /health with uptime for humans and dashboards.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatusOK
		code := http.StatusOK
		if h.shuttingDown.Load() {
			status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, healthResponse{
			Status: status,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		})
	}
}

// ReadinessHandler serves /readyz. Readiness requires the ready flag, no
// shutdown in progress, and a reachable store.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allOk := true

		if h.ready.Load() {
			checks["ready"] = healthStatusOK
		} else {
			checks["ready"] = healthStatusNotReady
			allOk = false
		}

		if h.shuttingDown.Load() {
			checks["shutdown"] = healthStatusShuttingDown
			allOk = false
		} else {
			checks["shutdown"] = healthStatusOK
		}

		if h.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := h.store.Ping(ctx); err != nil {
				checks["store"] = "unreachable"
				allOk = false
			} else {
				checks["store"] = healthStatusOK
			}
		}

		response := healthResponse{Checks: checks}
		if allOk {
			response.Status = healthStatusOK
			writeJSON(w, http.StatusOK, response)
		} else {
			response.Status = healthStatusNotReady
			writeJSON(w, http.StatusServiceUnavailable, response)
		}
	}
}
