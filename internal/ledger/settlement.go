package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// SettlementLedger tracks the user balance record and the protocol wallets.
// Every operation moves value between the two records and never creates or
// destroys it: the payout-asset sum is invariant across PnL transfers, and
// the fee-asset sum is invariant across fee collection and conversion.
type SettlementLedger struct {
	user     domain.Balances
	protocol domain.Balances
}

// NewSettlementLedger seeds both balance records.
func NewSettlementLedger(user, protocol domain.Balances) *SettlementLedger {
	return &SettlementLedger{user: user, protocol: protocol}
}

// User returns the user balance record.
func (s *SettlementLedger) User() domain.Balances { return s.user }

// Protocol returns the protocol balance record.
func (s *SettlementLedger) Protocol() domain.Balances { return s.protocol }

// TransferPnL settles a realized PnL amount in the payout asset. The
// protocol is the counterparty of every user trade, so the user gains
// exactly what the protocol loses and vice versa. A negative amount debits
// the user.
func (s *SettlementLedger) TransferPnL(amount decimal.Decimal) {
	s.user.PayoutAsset = s.user.PayoutAsset.Add(amount)
	s.protocol.PayoutAsset = s.protocol.PayoutAsset.Sub(amount)
}

// CollectFee moves a trading fee from the user to the protocol in the fee
// asset. It returns domain.ErrInsufficientBalance, with no state change,
// when the user cannot cover the fee; callers use this as the trade
// admission gate before applying any other side effect.
func (s *SettlementLedger) CollectFee(amount decimal.Decimal) error {
	if s.user.FeeAsset.LessThan(amount) {
		return fmt.Errorf("collect fee %s: %w", amount, domain.ErrInsufficientBalance)
	}
	s.user.FeeAsset = s.user.FeeAsset.Sub(amount)
	s.protocol.FeeAsset = s.protocol.FeeAsset.Add(amount)
	return nil
}

// Convert exchanges feeAmount of the user's fee asset for payout asset at
// the given rate (payout units per fee unit). The fee asset moves user to
// protocol, the payout asset moves protocol to user, and both legs must be
// fully funded or nothing happens.
func (s *SettlementLedger) Convert(feeAmount, rate decimal.Decimal) error {
	payout := feeAmount.Mul(rate)
	if s.user.FeeAsset.LessThan(feeAmount) {
		return fmt.Errorf("convert %s: user: %w", feeAmount, domain.ErrInsufficientBalance)
	}
	if s.protocol.PayoutAsset.LessThan(payout) {
		return fmt.Errorf("convert %s: protocol: %w", feeAmount, domain.ErrInsufficientBalance)
	}
	s.user.FeeAsset = s.user.FeeAsset.Sub(feeAmount)
	s.protocol.FeeAsset = s.protocol.FeeAsset.Add(feeAmount)
	s.protocol.PayoutAsset = s.protocol.PayoutAsset.Sub(payout)
	s.user.PayoutAsset = s.user.PayoutAsset.Add(payout)
	return nil
}
