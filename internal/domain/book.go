package domain

import "github.com/shopspring/decimal"

// PricePrecision is the venue price precision in fractional digits. Prices
// that round to the same value at this precision are aggregated into one
// book level.
const PricePrecision = 7

// SizePrecision is the venue size precision in fractional digits.
const SizePrecision = 2

// BookLevel is one price level of an order book side: an exact price, the
// total size resting at that price, and the number of aggregated orders it
// represents. A level with zero size is never retained.
type BookLevel struct {
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	OrderCount int             `json:"orders"`
}
