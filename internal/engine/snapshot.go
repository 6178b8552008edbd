package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"perpsim/internal/domain"
)

// statsWindow is the trailing window for the 24h ticker statistics.
const statsWindow = 24 * time.Hour

// Snapshot accessors. Each takes the mutation boundary, builds a
// self-contained copy, and releases it before returning, so callers can
// hold results indefinitely.

// Ticker returns the per-contract market summary.
func (e *Engine) Ticker() domain.TickerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickerLocked()
}

// Specs returns the static contract parameters.
func (e *Engine) Specs() domain.ContractSpecs {
	return domain.ContractSpecs{
		TickerID:              e.cfg.TickerID,
		ContractType:          "Vanilla",
		ContractPrice:         e.cfg.ContractPrice,
		ContractPriceCurrency: e.cfg.ContractPriceCurrency,
		Timestamp:             e.now().UnixMilli(),
	}
}

// Depth returns the merged book. depth limits levels per side; zero or
// negative means all.
func (e *Engine) Depth(depth int) domain.DepthSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depthLocked(depth)
}

// Orders returns open limit orders, open positions, and the recent fill
// records in one flat list.
func (e *Engine) Orders() domain.OrdersSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ordersLocked()
}

// OpenOrders returns the resting limit orders.
func (e *Engine) OpenOrders() []domain.LimitOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.all()
}

// OpenPositions returns the open positions in opening order.
func (e *Engine) OpenPositions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.ListOpen()
}

// Transactions returns every closed trade, newest first.
func (e *Engine) Transactions() []domain.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txlog.All()
}

// Account returns both wallets and the cumulative protocol-side settled
// PnL.
func (e *Engine) Account() domain.AccountSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.AccountSnapshot{
		User:       e.settlement.User(),
		Protocol:   e.settlement.Protocol(),
		SettledPnL: e.settledPnL.String(),
	}
}

func (e *Engine) tickerLocked() domain.TickerSnapshot {
	asks := mergeBook(e.synthAsks, e.book.bySide(domain.SideSell), domain.SideSell)
	bids := mergeBook(e.synthBids, e.book.bySide(domain.SideBuy), domain.SideBuy)

	bid, ask := "", ""
	if p, ok := bestPrice(bids); ok {
		bid = p.StringFixed(domain.PricePrecision)
	}
	if p, ok := bestPrice(asks); ok {
		ask = p.StringFixed(domain.PricePrecision)
	}

	last := e.price.Current
	quoteVolume := e.baseVolume.Mul(last)
	return domain.TickerSnapshot{
		TickerID:                 e.cfg.TickerID,
		BaseCurrency:             e.cfg.BaseCurrency,
		QuoteCurrency:            e.cfg.QuoteCurrency,
		LastPrice:                last.StringFixed(domain.PricePrecision),
		Bid:                      bid,
		Ask:                      ask,
		High:                     e.price.High.StringFixed(domain.PricePrecision),
		Low:                      e.price.Low.StringFixed(domain.PricePrecision),
		BaseVolume:               e.baseVolume.StringFixed(domain.SizePrecision),
		QuoteVolume:              quoteVolume.StringFixed(domain.SizePrecision),
		USDVolume:                quoteVolume.Mul(e.cfg.FeeAssetUSD).StringFixed(domain.SizePrecision),
		Volume24h:                e.txlog.VolumeSince(statsWindow).StringFixed(domain.SizePrecision),
		Trades24h:                len(e.txlog.Since(statsWindow)),
		ProductType:              e.cfg.ProductType,
		FundingRate:              e.cfg.FundingRate.String(),
		NextFundingRate:          e.cfg.NextFundingRate.String(),
		NextFundingRateTimestamp: e.cfg.NextFundingTime,
		MakerFee:                 e.cfg.MakerFeeRate.String(),
		TakerFee:                 e.cfg.TakerFeeRate.String(),
		Timestamp:                e.now().UnixMilli(),
	}
}

func (e *Engine) depthLocked(depth int) domain.DepthSnapshot {
	asks := mergeBook(e.synthAsks, e.book.bySide(domain.SideSell), domain.SideSell)
	bids := mergeBook(e.synthBids, e.book.bySide(domain.SideBuy), domain.SideBuy)

	snap := domain.DepthSnapshot{
		TickerID:  e.cfg.TickerID,
		Timestamp: e.now().UnixMilli(),
		Asks:      levelPairs(asks, depth),
		Bids:      levelPairs(bids, depth),
		TotalAsks: len(asks),
		TotalBids: len(bids),
	}
	return snap
}

func levelPairs(levels []domain.BookLevel, depth int) [][2]string {
	if depth > 0 && depth < len(levels) {
		levels = levels[:depth]
	}
	out := make([][2]string, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, [2]string{
			lvl.Price.StringFixed(domain.PricePrecision),
			lvl.Size.StringFixed(domain.SizePrecision),
		})
	}
	return out
}

// ordersLocked composes the orders report: resting limit orders first, then
// open positions rendered as POS_<id> records, then the recent fills.
func (e *Engine) ordersLocked() domain.OrdersSnapshot {
	open := e.book.all()
	positions := e.positions.ListOpen()

	orders := make([]domain.FillRecord, 0, len(open)+len(positions)+len(e.fills))
	for _, o := range open {
		orders = append(orders, domain.FillRecord{
			OrderID:  o.ID,
			TickerID: e.cfg.TickerID,
			Side:     o.Side,
			Price:    o.Price.StringFixed(domain.PricePrecision),
			Size:     o.Size.StringFixed(domain.SizePrecision),
			Status:   string(domain.OrderStatusOpen),
			Type:     string(domain.TypeLimit),
		})
	}
	for _, p := range positions {
		orders = append(orders, domain.FillRecord{
			OrderID:  fmt.Sprintf("POS_%d", p.ID),
			TickerID: e.cfg.TickerID,
			Side:     p.Side,
			Price:    p.EntryPrice.StringFixed(domain.PricePrecision),
			Size:     p.Amount.StringFixed(domain.SizePrecision),
			Status:   string(domain.OrderStatusOpen),
			Type:     string(domain.TypeMarket),
		})
	}
	orders = append(orders, e.fills...)

	return domain.OrdersSnapshot{
		TickerID:    e.cfg.TickerID,
		Timestamp:   e.now().UnixMilli(),
		Orders:      orders,
		TotalOrders: len(orders),
	}
}

// Event payload builders. Failure to marshal is impossible for these value
// types, so errors are dropped.

func (e *Engine) marketEventsLocked() []event {
	return []event{
		{domain.ChannelTicks, mustMarshal(e.tickerLocked())},
		{domain.ChannelBook, e.depthPayloadLocked()},
	}
}

func (e *Engine) depthPayloadLocked() []byte {
	return mustMarshal(e.depthLocked(0))
}

func (e *Engine) ordersPayloadLocked() []byte {
	return mustMarshal(e.ordersLocked())
}

func (e *Engine) positionsPayloadLocked() []byte {
	return mustMarshal(e.positions.ListOpen())
}

func statusPayload(running bool) []byte {
	return mustMarshal(map[string]bool{"running": running})
}

func marshalEvent(v any) ([]byte, error) {
	return json.Marshal(v)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func simFillID() string {
	return "ORD_" + uuid.NewString()
}
