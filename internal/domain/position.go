package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open perpetual position held against the protocol. IDs are
// assigned from a monotonic counter owned by the engine and are never reused.
type Position struct {
	ID         uint64          `json:"id"`
	Side       Side            `json:"side"`
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	OpenTime   time.Time       `json:"open_time"`
}

// Transaction is the immutable record of a closed position.
type Transaction struct {
	ID          uint64          `json:"id"`
	Side        Side            `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	CloseTime   time.Time       `json:"close_time"`
}
