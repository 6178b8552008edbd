package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode    string
	running func() bool
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. running reports whether the
// simulation loop is active.
func NewHealthHandler(mode string, running func() bool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, running: running, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"running":   h.running(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
