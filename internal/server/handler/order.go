package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
	"perpsim/internal/platform/remote"
)

// TradingService defines the order commands the handler requires from the
// engine.
type TradingService interface {
	PlaceMarketOrder(side domain.Side, amount decimal.Decimal) (domain.Position, error)
	PlaceLimitOrder(side domain.Side, price, size decimal.Decimal, owner string) (domain.LimitOrder, error)
	CancelLimitOrder(id string) (domain.LimitOrder, error)
	OpenOrders() []domain.LimitOrder
}

// OrderForwarder proxies order commands to a remote backend (mirror mode).
type OrderForwarder interface {
	PlaceOrder(ctx context.Context, req remote.OrderRequest) (remote.OrderAck, error)
}

// OrderHandler serves order placement and management endpoints.
type OrderHandler struct {
	trading   TradingService
	forwarder OrderForwarder // nil outside mirror mode
	tickerID  string
	logger    *slog.Logger
}

// NewOrderHandler creates an OrderHandler. forwarder may be nil; when set,
// placed orders are forwarded to the remote backend instead of executed
// locally.
func NewOrderHandler(trading TradingService, forwarder OrderForwarder, tickerID string, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		trading:   trading,
		forwarder: forwarder,
		tickerID:  tickerID,
		logger:    logger,
	}
}

// placeOrderRequest is the JSON body for order placement.
type placeOrderRequest struct {
	Side   string `json:"side"`
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
	Owner  string `json:"owner"`
}

// ListOpen returns the resting limit orders.
// GET /api/orders
func (h *OrderHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	orders := h.trading.OpenOrders()
	if orders == nil {
		orders = []domain.LimitOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "total": len(orders)})
}

// Place executes a market order or rests a limit order.
// POST /api/orders
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	side := domain.Side(strings.ToUpper(req.Side))
	if side != domain.SideBuy && side != domain.SideSell {
		writeError(w, http.StatusBadRequest, "side must be BUY or SELL")
		return
	}

	orderType := domain.OrderType(strings.ToUpper(req.Type))
	if orderType == "" {
		orderType = domain.TypeMarket
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	if h.forwarder != nil {
		h.forward(w, r, req)
		return
	}

	switch orderType {
	case domain.TypeMarket:
		pos, err := h.trading.PlaceMarketOrder(side, amount)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": "FILLED", "position": pos})

	case domain.TypeLimit:
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "price must be a decimal number")
			return
		}
		order, err := h.trading.PlaceLimitOrder(side, price, amount, req.Owner)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": "OPEN", "order": order})

	default:
		writeError(w, http.StatusBadRequest, "type must be MARKET or LIMIT")
	}
}

// forward proxies the order command to the remote backend.
func (h *OrderHandler) forward(w http.ResponseWriter, r *http.Request, req placeOrderRequest) {
	ack, err := h.forwarder.PlaceOrder(r.Context(), remote.OrderRequest{
		TickerID: h.tickerID,
		Side:     strings.ToUpper(req.Side),
		Type:     strings.ToUpper(req.Type),
		Amount:   req.Amount,
		Price:    req.Price,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: forward order failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "remote backend rejected the order")
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

// Cancel removes a resting limit order.
// DELETE /api/orders/{id}
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	order, err := h.trading.CancelLimitOrder(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "CANCELLED", "order": order})
}
