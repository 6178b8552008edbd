package domain

import "github.com/shopspring/decimal"

// Balances holds the two asset balances of one wallet: the payout asset in
// which PnL is settled, and the fee asset in which trading fees and
// conversions are denominated.
type Balances struct {
	PayoutAsset decimal.Decimal `json:"payout_asset"`
	FeeAsset    decimal.Decimal `json:"fee_asset"`
}

// Add returns the element-wise sum of two balance records.
func (b Balances) Add(o Balances) Balances {
	return Balances{
		PayoutAsset: b.PayoutAsset.Add(o.PayoutAsset),
		FeeAsset:    b.FeeAsset.Add(o.FeeAsset),
	}
}
