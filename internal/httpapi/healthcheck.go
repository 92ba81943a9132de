// Package httpapi serves the agent's local health endpoint.
package httpapi

import (
	"net/http"
)

// Health is a point-in-time view of the agent.
type Health struct {
	Phase       string            `json:"phase"`
	Ready       bool              `json:"ready"`
	Failed      bool              `json:"-"`
	Peripherals map[string]string `json:"peripherals,omitempty"`
	Timers      []string          `json:"timers,omitempty"`
}

// HealthSource reports the agent's current health.
type HealthSource interface {
	Health() Health
}

type healthchecker struct {
	source HealthSource
}

// handleHealthz answers 200 once the agent is running, 503 while it starts and
// 500 after a fatal startup error.
func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health := h.source.Health()
	switch {
	case health.Failed:
		writeError(w, http.StatusInternalServerError, "startup failed in phase "+health.Phase)
	case !health.Ready:
		writeJSON(w, http.StatusServiceUnavailable, health)
	default:
		writeJSON(w, http.StatusOK, health)
	}
}

func registerHealthcheck(mux *http.ServeMux, source HealthSource) {
	h := &healthchecker{source: source}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
