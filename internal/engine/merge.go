package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// mergeBook overlays user limit orders onto one side of the synthetic book.
// Levels are keyed by price rounded to the book precision; sizes and order
// counts at the same price accumulate. Asks come back ascending, bids
// descending. Inputs are never mutated.
func mergeBook(synthetic []domain.BookLevel, userOrders []domain.LimitOrder, side domain.Side) []domain.BookLevel {
	byPrice := make(map[string]domain.BookLevel, len(synthetic)+len(userOrders))
	for _, lvl := range synthetic {
		key := lvl.Price.StringFixed(domain.PricePrecision)
		cur := byPrice[key]
		if cur.OrderCount == 0 {
			cur.Price = lvl.Price.Round(domain.PricePrecision)
		}
		cur.Size = cur.Size.Add(lvl.Size)
		cur.OrderCount += lvl.OrderCount
		byPrice[key] = cur
	}
	for _, o := range userOrders {
		if o.Side != side {
			continue
		}
		key := o.Price.StringFixed(domain.PricePrecision)
		cur := byPrice[key]
		if cur.OrderCount == 0 {
			cur.Price = o.Price.Round(domain.PricePrecision)
		}
		cur.Size = cur.Size.Add(o.Size)
		cur.OrderCount++
		byPrice[key] = cur
	}

	merged := make([]domain.BookLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		merged = append(merged, lvl)
	}
	sort.Slice(merged, func(i, j int) bool {
		if side == domain.SideSell {
			return merged[i].Price.LessThan(merged[j].Price)
		}
		return merged[i].Price.GreaterThan(merged[j].Price)
	})
	return merged
}

// bestPrice returns the top of a merged side, or false for an empty side.
func bestPrice(levels []domain.BookLevel) (decimal.Decimal, bool) {
	if len(levels) == 0 {
		return decimal.Decimal{}, false
	}
	return levels[0].Price, true
}
