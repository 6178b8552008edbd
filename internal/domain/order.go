package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes immediate execution from resting orders.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks the lifecycle of a resting limit order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// LimitOrder is a user order resting in the book until the reference price
// crosses its limit price. It is owned by the limit book from submission
// until it is filled or cancelled, at which point it is removed (a fill
// converts it into a Position rather than mutating it in place).
type LimitOrder struct {
	ID        string          `json:"order_id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Status    OrderStatus     `json:"status"`
	Owner     string          `json:"owner,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// FillRecord is a display record of a simulated or user fill, in the shape
// the orders reporting endpoint exposes.
type FillRecord struct {
	OrderID  string `json:"order_id"`
	TickerID string `json:"ticker_id"`
	Side     Side   `json:"side"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	Status   string `json:"status"`
	Type     string `json:"type"`
}
