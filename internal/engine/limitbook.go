package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// limitBook holds user-submitted resting limit orders, independent of
// synthetic liquidity. Collateral and fee checks happen upstream before
// submission; the book itself only requires positive price and size.
type limitBook struct {
	orders []domain.LimitOrder
}

// submit appends an order with the given id in Open status.
func (b *limitBook) submit(id string, side domain.Side, price, size decimal.Decimal, owner string, now time.Time) (domain.LimitOrder, error) {
	if !price.IsPositive() || !size.IsPositive() {
		return domain.LimitOrder{}, fmt.Errorf("limit order price and size must be positive: %w", domain.ErrInvalidOrder)
	}
	o := domain.LimitOrder{
		ID:        id,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    domain.OrderStatusOpen,
		Owner:     owner,
		CreatedAt: now,
	}
	b.orders = append(b.orders, o)
	return o, nil
}

// cancel removes the open order with the given id, returning it. An unknown
// id is domain.ErrNotFound.
func (b *limitBook) cancel(id string) (domain.LimitOrder, error) {
	for i, o := range b.orders {
		if o.ID == id && o.Status == domain.OrderStatusOpen {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			o.Status = domain.OrderStatusCancelled
			return o, nil
		}
	}
	return domain.LimitOrder{}, fmt.Errorf("cancel order %q: %w", id, domain.ErrNotFound)
}

// bySide returns the open orders for one side in submission order.
func (b *limitBook) bySide(side domain.Side) []domain.LimitOrder {
	var out []domain.LimitOrder
	for _, o := range b.orders {
		if o.Side == side && o.Status == domain.OrderStatusOpen {
			out = append(out, o)
		}
	}
	return out
}

// all returns a copy of every open order.
func (b *limitBook) all() []domain.LimitOrder {
	out := make([]domain.LimitOrder, len(b.orders))
	copy(out, b.orders)
	return out
}

// replace swaps the full order set; used by the auto-fill pass, which
// partitions orders into remaining and filled.
func (b *limitBook) replace(orders []domain.LimitOrder) {
	b.orders = orders
}
