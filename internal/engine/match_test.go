package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/internal/domain"
)

func TestConsumeSyntheticPartialLevel(t *testing.T) {
	levels := []domain.BookLevel{level("0.001", "1000", 1), level("0.002", "1000", 1)}

	out := consumeSynthetic(levels, d("400"))
	require.Len(t, out, 2)
	assert.True(t, out[0].Size.Equal(d("600")))
	assert.True(t, out[1].Size.Equal(d("1000")))
}

func TestConsumeSyntheticRemovesExhaustedLevels(t *testing.T) {
	levels := []domain.BookLevel{level("0.001", "1000", 1), level("0.002", "500", 1)}

	out := consumeSynthetic(levels, d("1200"))
	require.Len(t, out, 1)
	assert.True(t, out[0].Price.Equal(d("0.002")))
	assert.True(t, out[0].Size.Equal(d("300")))
}

func TestConsumeSyntheticDrainsEverything(t *testing.T) {
	levels := []domain.BookLevel{level("0.001", "100", 1)}
	out := consumeSynthetic(levels, d("500"))
	assert.Empty(t, out)
}

func TestAutoFillTriggersAtLimitPrice(t *testing.T) {
	orders := []domain.LimitOrder{
		{ID: "LIMIT_1", Side: domain.SideBuy, Price: d("0.0012"), Size: d("100"), Status: domain.OrderStatusOpen},
		{ID: "LIMIT_2", Side: domain.SideSell, Price: d("0.0014"), Size: d("200"), Status: domain.OrderStatusOpen},
	}

	// Price exactly at the buy limit triggers it; the sell stays resting.
	remaining, filled := autoFill(orders, d("0.0012"))
	require.Len(t, filled, 1)
	require.Len(t, remaining, 1)
	assert.Equal(t, "LIMIT_1", filled[0].ID)
	assert.Equal(t, "LIMIT_2", remaining[0].ID)

	// The fill executes at the order's own limit price, not the mark, and
	// keeps the exact decimals.
	assert.True(t, filled[0].Price.Equal(d("0.0012")))
	assert.True(t, filled[0].Size.Equal(d("100")))

	rec := fillRecord(filled[0], "BCRD-PERPBNB")
	assert.Equal(t, d("0.0012").StringFixed(domain.PricePrecision), rec.Price)
	assert.Equal(t, string(domain.OrderStatusFilled), rec.Status)
	assert.Equal(t, string(domain.TypeLimit), rec.Type)
}

func TestAutoFillSellTriggersFromAbove(t *testing.T) {
	orders := []domain.LimitOrder{
		{ID: "LIMIT_1", Side: domain.SideSell, Price: d("0.0013"), Size: d("50"), Status: domain.OrderStatusOpen},
	}

	remaining, filled := autoFill(orders, d("0.00135"))
	assert.Empty(t, remaining)
	require.Len(t, filled, 1)
	assert.True(t, filled[0].Price.Equal(d("0.0013")))
}

func TestAutoFillLeavesUntouchedOrdersUnchanged(t *testing.T) {
	orders := []domain.LimitOrder{
		{ID: "LIMIT_1", Side: domain.SideBuy, Price: d("0.001"), Size: d("100"), Status: domain.OrderStatusOpen},
	}

	remaining, filled := autoFill(orders, d("0.002"))
	assert.Empty(t, filled)
	require.Len(t, remaining, 1)
	assert.Equal(t, orders[0], remaining[0])
}
