package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// BotService controls the simulation loop.
type BotService interface {
	Start()
	Stop()
	Running() bool
	SetPauseTrades(paused bool)
}

// BotHandler serves the simulation control endpoints.
type BotHandler struct {
	bot    BotService
	logger *slog.Logger
}

// NewBotHandler creates a BotHandler.
func NewBotHandler(bot BotService, logger *slog.Logger) *BotHandler {
	return &BotHandler{bot: bot, logger: logger}
}

// Start launches the simulation tick loop.
// POST /api/bot/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.bot.Start()
	h.logger.InfoContext(r.Context(), "handler: simulation start requested")
	writeJSON(w, http.StatusOK, map[string]any{"running": h.bot.Running()})
}

// Stop halts the simulation tick loop.
// POST /api/bot/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.bot.Stop()
	h.logger.InfoContext(r.Context(), "handler: simulation stop requested")
	writeJSON(w, http.StatusOK, map[string]any{"running": h.bot.Running()})
}

// Status reports whether the simulation loop is active.
// GET /api/bot/status
func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.bot.Running()})
}

// pauseRequest is the JSON body for toggling simulated taker flow.
type pauseRequest struct {
	Paused bool `json:"paused"`
}

// Pause toggles the simulated taker flow without stopping price ticks.
// POST /api/bot/pause
func (h *BotHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.bot.SetPauseTrades(req.Paused)
	writeJSON(w, http.StatusOK, map[string]any{"paused": req.Paused})
}
