package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
)

// maxSynthLevels bounds book generation regardless of configuration.
const maxSynthLevels = 1000

// synthParams are the book generation knobs.
type synthParams struct {
	Levels      int
	SpreadPct   decimal.Decimal // e.g. 0.2 for a 0.2% full spread
	PriceStep   decimal.Decimal
	BaseLotSize decimal.Decimal
	MinLots     int
	MaxLots     int
}

func (p synthParams) validate() error {
	switch {
	case p.Levels <= 0:
		return fmt.Errorf("order levels must be positive: %w", domain.ErrInvalidConfig)
	case p.Levels > maxSynthLevels:
		return fmt.Errorf("order levels exceed %d: %w", maxSynthLevels, domain.ErrInvalidConfig)
	case !p.PriceStep.IsPositive():
		return fmt.Errorf("price step must be positive: %w", domain.ErrInvalidConfig)
	case p.MinLots < 1 || p.MaxLots < p.MinLots:
		return fmt.Errorf("lots per level must satisfy 1 <= min <= max: %w", domain.ErrInvalidConfig)
	}
	return nil
}

// synthesize generates the full synthetic book around midPrice: asks start
// half the spread above it, bids half below, and each subsequent level steps
// outward by priceStep*(1+i*0.1) scaled by a jitter factor in [0.9, 1.1].
// Level size is baseLotSize times a lot count drawn from [MinLots, MaxLots].
// The result replaces any prior synthetic book wholesale; asks come out
// ascending and bids descending, best price first.
func synthesize(midPrice decimal.Decimal, p synthParams, rng *rand.Rand) (asks, bids []domain.BookLevel, err error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}
	if !midPrice.IsPositive() {
		return nil, nil, fmt.Errorf("mid price must be positive: %w", domain.ErrInvalidConfig)
	}

	halfSpread := p.SpreadPct.Div(decimal.NewFromInt(200)) // pct/100/2
	askPrice := midPrice.Mul(decimal.NewFromInt(1).Add(halfSpread))
	bidPrice := midPrice.Mul(decimal.NewFromInt(1).Sub(halfSpread))

	asks = make([]domain.BookLevel, 0, p.Levels)
	bids = make([]domain.BookLevel, 0, p.Levels)

	for i := 0; i < p.Levels; i++ {
		widen := decimal.NewFromFloat(1 + float64(i)*0.1)

		askLots := p.MinLots + rng.IntN(p.MaxLots-p.MinLots+1)
		asks = append(asks, domain.BookLevel{
			Price:      askPrice.Round(domain.PricePrecision),
			Size:       p.BaseLotSize.Mul(decimal.NewFromInt(int64(askLots))),
			OrderCount: askLots,
		})
		askJitter := decimal.NewFromFloat(0.9 + rng.Float64()*0.2)
		askPrice = askPrice.Add(p.PriceStep.Mul(widen).Mul(askJitter))

		bidLots := p.MinLots + rng.IntN(p.MaxLots-p.MinLots+1)
		bids = append(bids, domain.BookLevel{
			Price:      bidPrice.Round(domain.PricePrecision),
			Size:       p.BaseLotSize.Mul(decimal.NewFromInt(int64(bidLots))),
			OrderCount: bidLots,
		})
		bidJitter := decimal.NewFromFloat(0.9 + rng.Float64()*0.2)
		bidPrice = bidPrice.Sub(p.PriceStep.Mul(widen).Mul(bidJitter))
	}

	return asks, bids, nil
}
