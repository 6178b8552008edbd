// Package feed bridges external market data into the engine. The mirror
// feed polls a remote exchange backend and replays its price and book, so
// the engine reflects a real market instead of generating one.
package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
	"perpsim/internal/platform/remote"
)

// MarketSink receives externally observed market state. The engine
// implements it.
type MarketSink interface {
	SetExternalMarket(price decimal.Decimal, asks, bids []domain.BookLevel) error
}

// MirrorFeed polls the remote backend on a fixed interval and pushes each
// observation into the sink. A failed poll is logged and skipped; the
// previous observation stays in effect until the next success.
type MirrorFeed struct {
	client   *remote.Client
	sink     MarketSink
	tickerID string
	interval time.Duration
	logger   *slog.Logger
}

// NewMirrorFeed creates a MirrorFeed.
func NewMirrorFeed(client *remote.Client, sink MarketSink, tickerID string, interval time.Duration, logger *slog.Logger) *MirrorFeed {
	return &MirrorFeed{
		client:   client,
		sink:     sink,
		tickerID: tickerID,
		interval: interval,
		logger:   logger.With(slog.String("component", "mirror_feed")),
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (f *MirrorFeed) Run(ctx context.Context) error {
	f.logger.Info("mirror feed started", slog.String("ticker", f.tickerID), slog.Duration("interval", f.interval))
	defer f.logger.Info("mirror feed stopped")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.poll(ctx); err != nil {
			f.logger.Warn("mirror poll failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *MirrorFeed) poll(ctx context.Context) error {
	tick, err := f.client.GetTicker(ctx, f.tickerID)
	if err != nil {
		return err
	}
	depth, err := f.client.GetDepth(ctx, f.tickerID)
	if err != nil {
		return err
	}

	price, err := decimal.NewFromString(tick.LastPrice)
	if err != nil {
		return err
	}
	asks, err := parseLevels(depth.Asks)
	if err != nil {
		return err
	}
	bids, err := parseLevels(depth.Bids)
	if err != nil {
		return err
	}

	return f.sink.SetExternalMarket(price, asks, bids)
}

// parseLevels converts [price, size] string pairs into book levels. Each
// remote level counts as one order.
func parseLevels(pairs [][2]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(pairs))
	for _, p := range pairs {
		price, err := decimal.NewFromString(p[0])
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(p[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, domain.BookLevel{Price: price, Size: size, OrderCount: 1})
	}
	return levels, nil
}
