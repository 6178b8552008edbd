package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"perpsim/internal/domain"
)

// MarketService defines the read-side the market handler requires from the
// engine.
type MarketService interface {
	Ticker() domain.TickerSnapshot
	Specs() domain.ContractSpecs
	Depth(depth int) domain.DepthSnapshot
	Orders() domain.OrdersSnapshot
}

// MarketHandler serves the public market-data endpoints.
type MarketHandler struct {
	market       MarketService
	tickerID     string
	defaultDepth int
	logger       *slog.Logger
}

// NewMarketHandler creates a MarketHandler for a single contract.
func NewMarketHandler(market MarketService, tickerID string, defaultDepth int, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market:       market,
		tickerID:     tickerID,
		defaultDepth: defaultDepth,
		logger:       logger,
	}
}

// knownTicker rejects requests for contracts this node does not serve.
func (h *MarketHandler) knownTicker(w http.ResponseWriter, r *http.Request) bool {
	if t := pathParam(r, "ticker"); t != h.tickerID {
		writeError(w, http.StatusNotFound, "unknown ticker "+t)
		return false
	}
	return true
}

// GetContract returns the market summary for a contract.
// GET /v1/contracts/{ticker}
func (h *MarketHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	if !h.knownTicker(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.market.Ticker())
}

// GetSpecs returns the static contract parameters.
// GET /v1/contracts/{ticker}/specs
func (h *MarketHandler) GetSpecs(w http.ResponseWriter, r *http.Request) {
	if !h.knownTicker(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.market.Specs())
}

// GetOrderbook returns the merged order book.
// GET /v1/orderbook/{ticker}?depth=50
func (h *MarketHandler) GetOrderbook(w http.ResponseWriter, r *http.Request) {
	if !h.knownTicker(w, r) {
		return
	}

	depth := h.defaultDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		depth = n
	}

	writeJSON(w, http.StatusOK, h.market.Depth(depth))
}

// GetRecentOrders returns the recent fill records, newest first.
// GET /v1/orders/{ticker}
func (h *MarketHandler) GetRecentOrders(w http.ResponseWriter, r *http.Request) {
	if !h.knownTicker(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.market.Orders())
}
