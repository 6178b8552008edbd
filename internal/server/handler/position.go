package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"perpsim/internal/domain"
)

// PositionService defines the position commands the handler requires from
// the engine.
type PositionService interface {
	OpenPositions() []domain.Position
	ClosePosition(id uint64) (domain.Transaction, error)
	Transactions() []domain.Transaction
}

// PositionHandler serves position and transaction-history endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

// ListOpen returns the open positions in opening order.
// GET /api/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.OpenPositions()
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions, "total": len(positions)})
}

// Close settles a position at the current price.
// POST /api/positions/{id}/close
func (h *PositionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "position id must be a positive integer")
		return
	}

	tx, err := h.positions.ClosePosition(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "CLOSED", "transaction": tx})
}

// ListTransactions returns closed trades, newest first.
// GET /api/transactions?limit=50
func (h *PositionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := h.positions.Transactions()
	if limit := parseLimit(r, 50); len(txs) > limit {
		txs = txs[:limit]
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs, "total": len(txs)})
}
