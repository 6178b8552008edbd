package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openPosition(id uint64, side domain.Side, amount, entry string) domain.Position {
	return domain.Position{
		ID:         id,
		Side:       side,
		Amount:     d(amount),
		EntryPrice: d(entry),
		OpenTime:   time.Now(),
	}
}

func TestCloseLongProfitsWhenPriceRises(t *testing.T) {
	l := NewPositionLedger()
	l.Open(openPosition(1, domain.SideBuy, "1000", "0.0012"))

	res, err := l.Close(1, d("0.0013"), d("380"))
	require.NoError(t, err)

	// (0.0013 - 0.0012) * 1000 * 380 = 38
	assert.True(t, res.PnL.Equal(d("38")), "pnl = %s", res.PnL)
	assert.Zero(t, l.Len())
}

func TestCloseShortProfitsWhenPriceFalls(t *testing.T) {
	l := NewPositionLedger()
	l.Open(openPosition(1, domain.SideSell, "1000", "0.0013"))

	res, err := l.Close(1, d("0.0012"), d("380"))
	require.NoError(t, err)
	assert.True(t, res.PnL.Equal(d("38")))
}

func TestCloseLongLosesWhenPriceFalls(t *testing.T) {
	l := NewPositionLedger()
	l.Open(openPosition(1, domain.SideBuy, "500", "0.0013"))

	res, err := l.Close(1, d("0.0012"), d("380"))
	require.NoError(t, err)
	assert.True(t, res.PnL.Equal(d("-19")))
}

func TestCloseUnknownID(t *testing.T) {
	l := NewPositionLedger()
	_, err := l.Close(7, d("1"), d("1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseRejectsDegenerateInputs(t *testing.T) {
	l := NewPositionLedger()
	l.Open(openPosition(1, domain.SideBuy, "100", "0.001"))

	_, err := l.Close(1, d("0"), d("380"))
	assert.ErrorIs(t, err, domain.ErrNonFinitePnL)

	_, err = l.Close(1, d("0.001"), d("0"))
	assert.ErrorIs(t, err, domain.ErrNonFinitePnL)

	// A rejected close leaves the position in place for retry.
	assert.Equal(t, 1, l.Len())
}

func TestListOpenReturnsCopy(t *testing.T) {
	l := NewPositionLedger()
	l.Open(openPosition(1, domain.SideBuy, "100", "0.001"))

	got := l.ListOpen()
	got[0].Amount = d("999")

	assert.True(t, l.ListOpen()[0].Amount.Equal(d("100")))
}

func TestCloseRemovesOnlyTargetPosition(t *testing.T) {
	l := NewPositionLedger()
	l.Open(openPosition(1, domain.SideBuy, "100", "0.001"))
	l.Open(openPosition(2, domain.SideSell, "200", "0.002"))
	l.Open(openPosition(3, domain.SideBuy, "300", "0.003"))

	_, err := l.Close(2, d("0.0025"), d("380"))
	require.NoError(t, err)

	open := l.ListOpen()
	require.Len(t, open, 2)
	assert.Equal(t, uint64(1), open[0].ID)
	assert.Equal(t, uint64(3), open[1].ID)
}
