package engine

import (
	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// consumeSynthetic removes size from the best synthetic levels of one side.
// Only generated liquidity is consumed; user resting orders are tracked in
// the limit book and stay untouched. Levels must already be sorted best
// first. Returns the pruned side.
func consumeSynthetic(levels []domain.BookLevel, size decimal.Decimal) []domain.BookLevel {
	remaining := size
	out := levels[:0:0]
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			out = append(out, lvl)
			continue
		}
		if lvl.Size.GreaterThan(remaining) {
			lvl.Size = lvl.Size.Sub(remaining)
			remaining = decimal.Zero
			out = append(out, lvl)
			continue
		}
		remaining = remaining.Sub(lvl.Size)
	}
	return out
}

// autoFill partitions open limit orders against the current mark price.
// Buys fill once the price trades at or through the limit, sells likewise
// from above; fills execute at the order's own limit price. Returns the
// surviving orders and the triggered ones with their exact decimals intact.
func autoFill(orders []domain.LimitOrder, price decimal.Decimal) (remaining, filled []domain.LimitOrder) {
	for _, o := range orders {
		if o.Status != domain.OrderStatusOpen || !triggered(o, price) {
			remaining = append(remaining, o)
			continue
		}
		filled = append(filled, o)
	}
	return remaining, filled
}

// fillRecord renders a filled limit order into the display shape.
func fillRecord(o domain.LimitOrder, tickerID string) domain.FillRecord {
	return domain.FillRecord{
		OrderID:  o.ID,
		TickerID: tickerID,
		Side:     o.Side,
		Price:    o.Price.StringFixed(domain.PricePrecision),
		Size:     o.Size.StringFixed(domain.SizePrecision),
		Status:   string(domain.OrderStatusFilled),
		Type:     string(domain.TypeLimit),
	}
}

func triggered(o domain.LimitOrder, price decimal.Decimal) bool {
	if o.Side == domain.SideBuy {
		return price.LessThanOrEqual(o.Price)
	}
	return price.GreaterThanOrEqual(o.Price)
}
