package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/internal/domain"
)

func testSynthParams() synthParams {
	return synthParams{
		Levels:      20,
		SpreadPct:   d("0.2"),
		PriceStep:   d("0.0000001"),
		BaseLotSize: d("1000"),
		MinLots:     1,
		MaxLots:     10,
	}
}

func TestSynthesizeShape(t *testing.T) {
	mid := d("0.0012352")
	asks, bids, err := synthesize(mid, testSynthParams(), testRNG())
	require.NoError(t, err)
	require.Len(t, asks, 20)
	require.Len(t, bids, 20)

	// Best ask above mid, best bid below, asks ascending, bids descending.
	assert.True(t, asks[0].Price.GreaterThan(mid))
	assert.True(t, bids[0].Price.LessThan(mid))
	for i := 1; i < len(asks); i++ {
		assert.True(t, asks[i].Price.GreaterThan(asks[i-1].Price), "ask level %d not ascending", i)
		assert.True(t, bids[i].Price.LessThan(bids[i-1].Price), "bid level %d not descending", i)
	}
}

func TestSynthesizeSpreadStraddlesMid(t *testing.T) {
	mid := d("1")
	p := testSynthParams()
	p.SpreadPct = d("2") // 2% full spread, 1% each side

	asks, bids, err := synthesize(mid, p, testRNG())
	require.NoError(t, err)

	assert.True(t, asks[0].Price.Equal(d("1.01")))
	assert.True(t, bids[0].Price.Equal(d("0.99")))
}

func TestSynthesizeLevelSizes(t *testing.T) {
	p := testSynthParams()
	asks, bids, err := synthesize(d("0.001"), p, testRNG())
	require.NoError(t, err)

	for _, lvl := range append(asks, bids...) {
		assert.GreaterOrEqual(t, lvl.OrderCount, p.MinLots)
		assert.LessOrEqual(t, lvl.OrderCount, p.MaxLots)
		want := p.BaseLotSize.Mul(decimal.NewFromInt(int64(lvl.OrderCount)))
		assert.True(t, lvl.Size.Equal(want), "size %s is not lots*baseLot", lvl.Size)
	}
}

func TestSynthesizeRoundsToBookPrecision(t *testing.T) {
	asks, bids, err := synthesize(d("0.0012352"), testSynthParams(), testRNG())
	require.NoError(t, err)

	for _, lvl := range append(asks, bids...) {
		assert.True(t, lvl.Price.Equal(lvl.Price.Round(domain.PricePrecision)))
	}
}

func TestSynthesizeRejectsBadParams(t *testing.T) {
	cases := map[string]func(*synthParams){
		"zero levels":        func(p *synthParams) { p.Levels = 0 },
		"too many levels":    func(p *synthParams) { p.Levels = maxSynthLevels + 1 },
		"zero price step":    func(p *synthParams) { p.PriceStep = d("0") },
		"zero min lots":      func(p *synthParams) { p.MinLots = 0 },
		"inverted lot range": func(p *synthParams) { p.MinLots = 5; p.MaxLots = 4 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := testSynthParams()
			mutate(&p)
			_, _, err := synthesize(d("1"), p, testRNG())
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}

	_, _, err := synthesize(d("0"), testSynthParams(), testRNG())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
