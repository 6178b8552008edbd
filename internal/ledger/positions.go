// Package ledger holds the engine's accounting state: open positions, the
// two-wallet settlement ledger, and the append-only transaction log. None of
// its types are safe for concurrent use on their own; the engine serializes
// access behind its mutation boundary.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// PositionLedger owns the full set of open positions. Positions enter via
// Open (market fills and limit-order auto-fills) and leave only via Close.
type PositionLedger struct {
	open []domain.Position
}

// ClosedResult is returned by Close: the removed position and its realized
// PnL in payout-asset units.
type ClosedResult struct {
	Position domain.Position
	PnL      decimal.Decimal
}

// NewPositionLedger creates an empty ledger.
func NewPositionLedger() *PositionLedger {
	return &PositionLedger{}
}

// Open adds a position to the ledger.
func (l *PositionLedger) Open(p domain.Position) {
	l.open = append(l.open, p)
}

// ListOpen returns a copy of all open positions in opening order.
func (l *PositionLedger) ListOpen() []domain.Position {
	out := make([]domain.Position, len(l.open))
	copy(out, l.open)
	return out
}

// Len returns the number of open positions.
func (l *PositionLedger) Len() int { return len(l.open) }

// Close removes the position with the given id and computes its realized
// PnL: (exitPrice - entryPrice) * direction * amount, converted from quote
// asset to payout asset via the fixed conversion ratio
// (quote-asset-USD / payout-asset-USD).
//
// It returns domain.ErrNotFound if the id is unknown and
// domain.ErrNonFinitePnL if any input could not produce a meaningful result
// (non-positive prices or ratio); in both cases the position set is
// unchanged so the close can be retried.
func (l *PositionLedger) Close(id uint64, exitPrice, conversion decimal.Decimal) (ClosedResult, error) {
	idx := -1
	for i, p := range l.open {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ClosedResult{}, fmt.Errorf("close position %d: %w", id, domain.ErrNotFound)
	}

	p := l.open[idx]
	if !exitPrice.IsPositive() || !p.EntryPrice.IsPositive() || !conversion.IsPositive() {
		return ClosedResult{}, fmt.Errorf("close position %d: %w", id, domain.ErrNonFinitePnL)
	}

	direction := decimal.NewFromInt(1)
	if p.Side == domain.SideSell {
		direction = decimal.NewFromInt(-1)
	}
	pnl := exitPrice.Sub(p.EntryPrice).Mul(direction).Mul(p.Amount).Mul(conversion)

	l.open = append(l.open[:idx], l.open[idx+1:]...)
	return ClosedResult{Position: p, PnL: pnl}, nil
}
