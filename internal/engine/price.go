// Package engine implements the exchange engine: a bounded random-walk
// reference price, a synthesized two-sided order book merged with
// user-resting limit orders, top-of-book matching, and cash settlement
// against a two-wallet ledger. All state mutation is serialized behind a
// single mutex per Engine instance.
package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// priceFloor is the minimum positive reference price. A tick can never take
// the price to zero or below.
var priceFloor = decimal.RequireFromString("0.0000001")

// PriceState is the reference price together with its running session
// extrema. Invariant: Low <= Current <= High.
type PriceState struct {
	Current decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
}

// newPriceState starts all three fields at the given price.
func newPriceState(start decimal.Decimal) PriceState {
	return PriceState{Current: start, High: start, Low: start}
}

// observe sets the current price and extends the extrema.
func (ps *PriceState) observe(p decimal.Decimal) {
	ps.Current = p
	if p.GreaterThan(ps.High) {
		ps.High = p
	}
	if p.LessThan(ps.Low) {
		ps.Low = p
	}
}

// tickPrice advances the price one step of the random walk: the relative
// change is drawn uniformly from [-volatility, +volatility] and the result
// is clamped to the price floor. Volatility outside [0, 1] is rejected so a
// single tick can never swing more than 100%.
func tickPrice(st PriceState, volatility decimal.Decimal, rng *rand.Rand) (PriceState, error) {
	if volatility.IsNegative() || volatility.GreaterThan(decimal.NewFromInt(1)) {
		return st, fmt.Errorf("volatility %s out of [0,1]: %w", volatility, domain.ErrInvalidConfig)
	}

	u := (rng.Float64() - 0.5) * 2
	change := volatility.Mul(decimal.NewFromFloat(u))
	next := st.Current.Mul(decimal.NewFromInt(1).Add(change))
	if next.LessThan(priceFloor) {
		next = priceFloor
	}

	st.observe(next)
	return st, nil
}
