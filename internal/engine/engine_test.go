package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/internal/domain"
)

func testEngineConfig() Config {
	return Config{
		TickerID:        "BCRD-PERPBNB",
		BaseCurrency:    "BCRD",
		QuoteCurrency:   "BNB",
		ProductType:     "Perpetual",
		StartPrice:      d("0.0012352"),
		Volatility:      d("0.01"),
		TickInterval:    time.Hour, // ticks are driven manually in tests
		Seed:            42,
		OrderLevels:     10,
		SpreadPct:       d("0.2"),
		PriceStep:       d("0.0000001"),
		BaseLotSize:     d("1000"),
		MinLots:         1,
		MaxLots:         5,
		MakerFeeRate:    d("0.00025"),
		TakerFeeRate:    d("0.00023"),
		FundingRate:     d("0.0001"),
		NextFundingRate: d("0.00011"),
		NextFundingTime: 1672531200000,
		PayoutAssetUSD:  d("0.8"),
		FeeAssetUSD:     d("304"),
		MinOrderAmount:  d("1"),
		MaxOrderAmount:  d("1000000"),
		SeedVolume:      d("1250000"),
		UserBalances:    domain.Balances{PayoutAsset: d("5000"), FeeAsset: d("100")},
		ProtocolBalances: domain.Balances{
			PayoutAsset: d("100000"),
			FeeAsset:    d("5000"),
		},
		ContractPrice:         1,
		ContractPriceCurrency: "BCRD",
	}
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := New(cfg, logger, nil)
	require.NoError(t, err)
	return e
}

func startedEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := newTestEngine(t, cfg)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func totalPayout(e *Engine) decimal.Decimal {
	acct := e.Account()
	return acct.User.PayoutAsset.Add(acct.Protocol.PayoutAsset)
}

func totalFeeAsset(e *Engine) decimal.Decimal {
	acct := e.Account()
	return acct.User.FeeAsset.Add(acct.Protocol.FeeAsset)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testEngineConfig()
	cfg.Volatility = d("2")
	_, err := New(cfg, logger, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = testEngineConfig()
	cfg.TickerID = ""
	_, err = New(cfg, logger, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestOrdersRejectedWhileStopped(t *testing.T) {
	e := newTestEngine(t, testEngineConfig())

	_, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	assert.ErrorIs(t, err, domain.ErrNotRunning)

	_, err = e.PlaceLimitOrder(domain.SideBuy, d("0.001"), d("1000"), "")
	assert.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestStartStopIdempotent(t *testing.T) {
	e := newTestEngine(t, testEngineConfig())

	e.Start()
	e.Start()
	assert.True(t, e.Running())

	e.Stop()
	e.Stop()
	assert.False(t, e.Running())
}

func TestMarketBuyOpensPositionAtBestAsk(t *testing.T) {
	e := startedEngine(t, testEngineConfig())
	bestAsk := e.synthAsks[0].Price
	askSize := e.synthAsks[0].Size

	pos, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), pos.ID)
	assert.Equal(t, domain.SideBuy, pos.Side)
	assert.True(t, pos.EntryPrice.Equal(bestAsk), "entry %s != best ask %s", pos.EntryPrice, bestAsk)
	require.Len(t, e.OpenPositions(), 1)

	// Only the top level shrinks.
	assert.True(t, e.synthAsks[0].Size.Equal(askSize.Sub(d("1000"))))
}

func TestMarketOrderChargesTakerFee(t *testing.T) {
	cfg := testEngineConfig()
	e := startedEngine(t, cfg)
	before := e.Account()

	_, err := e.PlaceMarketOrder(domain.SideSell, d("1000"))
	require.NoError(t, err)

	fee := d("1000").Mul(cfg.PayoutAssetUSD).Mul(cfg.TakerFeeRate).Div(cfg.FeeAssetUSD)
	after := e.Account()
	assert.True(t, after.User.FeeAsset.Equal(before.User.FeeAsset.Sub(fee)))
	assert.True(t, after.Protocol.FeeAsset.Equal(before.Protocol.FeeAsset.Add(fee)))
}

func TestMarketOrderAmountBounds(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	_, err := e.PlaceMarketOrder(domain.SideBuy, d("0.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = e.PlaceMarketOrder(domain.SideBuy, d("1000001"))
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Empty(t, e.OpenPositions())
}

func TestMarketOrderCollateralGate(t *testing.T) {
	cfg := testEngineConfig()
	cfg.UserBalances.PayoutAsset = d("10")
	e := startedEngine(t, cfg)
	before := e.Account()

	_, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// A rejected order leaves every piece of state untouched.
	assert.Equal(t, before, e.Account())
	assert.Empty(t, e.OpenPositions())
	assert.Zero(t, e.Orders().TotalOrders)
}

func TestMarketOrderFeeGate(t *testing.T) {
	cfg := testEngineConfig()
	cfg.UserBalances.FeeAsset = d("0")
	e := startedEngine(t, cfg)
	before := e.Account()

	_, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, before, e.Account())
	assert.Empty(t, e.OpenPositions())
}

func TestMarketOrderEmptyBook(t *testing.T) {
	e := startedEngine(t, testEngineConfig())
	e.mu.Lock()
	e.synthAsks = nil
	e.mu.Unlock()

	_, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	assert.ErrorIs(t, err, domain.ErrEmptyBook)
}

func TestMarketOrderNeverConsumesUserLiquidity(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	// Rest a sell inside the synthetic spread so it becomes the best ask.
	limitPrice := e.synthAsks[0].Price.Sub(d("0.0000002"))
	require.True(t, limitPrice.GreaterThan(e.price.Current))
	order, err := e.PlaceLimitOrder(domain.SideSell, limitPrice, d("500"), "")
	require.NoError(t, err)

	pos, err := e.PlaceMarketOrder(domain.SideBuy, d("400"))
	require.NoError(t, err)

	// The taker pays the user's price but the user's order stays whole;
	// only synthetic depth is consumed.
	assert.True(t, pos.EntryPrice.Equal(limitPrice.Round(domain.PricePrecision)))
	open := e.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, order.ID, open[0].ID)
	assert.True(t, open[0].Size.Equal(d("500")))
}

func TestLimitOrderChargesMakerFeeUpFrontNoRefund(t *testing.T) {
	cfg := testEngineConfig()
	e := startedEngine(t, cfg)
	before := e.Account()

	order, err := e.PlaceLimitOrder(domain.SideBuy, d("0.001"), d("1000"), "")
	require.NoError(t, err)

	fee := d("1000").Mul(cfg.PayoutAssetUSD).Mul(cfg.MakerFeeRate).Div(cfg.FeeAssetUSD)
	mid := e.Account()
	assert.True(t, mid.User.FeeAsset.Equal(before.User.FeeAsset.Sub(fee)))

	_, err = e.CancelLimitOrder(order.ID)
	require.NoError(t, err)
	after := e.Account()
	assert.True(t, after.User.FeeAsset.Equal(mid.User.FeeAsset), "cancel must not refund the maker fee")
	assert.Empty(t, e.OpenOrders())
}

func TestCancelUnknownOrder(t *testing.T) {
	e := startedEngine(t, testEngineConfig())
	_, err := e.CancelLimitOrder("LIMIT_404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLimitOrderAutoFillsWhenPriceCrosses(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	_, err := e.PlaceLimitOrder(domain.SideSell, d("0.0013"), d("1000"), "")
	require.NoError(t, err)

	// Feed a price through the limit; the order fills at its own price.
	err = e.SetExternalMarket(d("0.00135"), nil, nil)
	require.NoError(t, err)

	assert.Empty(t, e.OpenOrders())
	positions := e.OpenPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, domain.SideSell, positions[0].Side)
	assert.True(t, positions[0].EntryPrice.Equal(d("0.0013")))

	// The snapshot leads with the opened position, then the fill record.
	orders := e.Orders().Orders
	require.Len(t, orders, 2)
	assert.Equal(t, string(domain.TypeMarket), orders[0].Type)
	assert.Equal(t, string(domain.TypeLimit), orders[1].Type)
	assert.Equal(t, string(domain.OrderStatusFilled), orders[1].Status)
}

func TestClosePositionRealizesPnL(t *testing.T) {
	cfg := testEngineConfig()
	e := startedEngine(t, cfg)
	payoutBefore := totalPayout(e)

	pos, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	require.NoError(t, err)

	exit := d("0.0013")
	require.NoError(t, e.SetExternalMarket(exit, nil, nil))

	tx, err := e.ClosePosition(pos.ID)
	require.NoError(t, err)

	conversion := cfg.FeeAssetUSD.Div(cfg.PayoutAssetUSD)
	wantPnL := exit.Sub(pos.EntryPrice).Mul(d("1000")).Mul(conversion)
	assert.True(t, tx.RealizedPnL.Equal(wantPnL), "pnl %s != %s", tx.RealizedPnL, wantPnL)
	assert.True(t, tx.RealizedPnL.IsPositive())
	assert.Empty(t, e.OpenPositions())

	// PnL moves between the wallets; the payout-asset total is conserved.
	assert.True(t, totalPayout(e).Equal(payoutBefore))

	txs := e.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, pos.ID, txs[0].ID)
}

func TestTickerStatsCountClosedTrades(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	// Seeded session volume does not leak into the trailing-window stats.
	tick := e.Ticker()
	assert.Equal(t, 0, tick.Trades24h)
	assert.Equal(t, "0.00", tick.Volume24h)

	pos, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	require.NoError(t, err)

	// An open position is not a trade yet.
	assert.Equal(t, 0, e.Ticker().Trades24h)

	_, err = e.ClosePosition(pos.ID)
	require.NoError(t, err)

	tick = e.Ticker()
	assert.Equal(t, 1, tick.Trades24h)
	assert.Equal(t, "1000.00", tick.Volume24h)
}

func TestCloseUnknownPosition(t *testing.T) {
	e := startedEngine(t, testEngineConfig())
	_, err := e.ClosePosition(999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionIDsAreMonotonic(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	p1, err := e.PlaceMarketOrder(domain.SideBuy, d("100"))
	require.NoError(t, err)
	p2, err := e.PlaceMarketOrder(domain.SideSell, d("100"))
	require.NoError(t, err)

	_, err = e.ClosePosition(p1.ID)
	require.NoError(t, err)

	p3, err := e.PlaceMarketOrder(domain.SideBuy, d("100"))
	require.NoError(t, err)

	// IDs are never reused, even after a close frees the earlier one.
	assert.Greater(t, p2.ID, p1.ID)
	assert.Greater(t, p3.ID, p2.ID)
}

func TestConvertMovesBothLegs(t *testing.T) {
	cfg := testEngineConfig()
	e := startedEngine(t, cfg)
	payoutBefore := totalPayout(e)
	feeBefore := totalFeeAsset(e)

	require.NoError(t, e.Convert(d("1")))

	acct := e.Account()
	rate := cfg.FeeAssetUSD.Div(cfg.PayoutAssetUSD)
	assert.True(t, acct.User.FeeAsset.Equal(cfg.UserBalances.FeeAsset.Sub(d("1"))))
	assert.True(t, acct.User.PayoutAsset.Equal(cfg.UserBalances.PayoutAsset.Add(rate)))

	// Conversion is a swap, not issuance.
	assert.True(t, totalPayout(e).Equal(payoutBefore))
	assert.True(t, totalFeeAsset(e).Equal(feeBefore))

	err := e.Convert(d("100000"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	err = e.Convert(d("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestConservationAcrossTradeSequence(t *testing.T) {
	e := startedEngine(t, testEngineConfig())
	payoutBefore := totalPayout(e)
	feeBefore := totalFeeAsset(e)

	p1, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	require.NoError(t, err)
	_, err = e.PlaceLimitOrder(domain.SideSell, d("0.0013"), d("500"), "")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		e.step()
	}

	_, err = e.ClosePosition(p1.ID)
	require.NoError(t, err)
	require.NoError(t, e.Convert(d("2")))

	// Whatever happened, value only moved between the two wallets.
	assert.True(t, totalPayout(e).Equal(payoutBefore), "payout total drifted: %s != %s", totalPayout(e), payoutBefore)
	assert.True(t, totalFeeAsset(e).Equal(feeBefore), "fee total drifted: %s != %s", totalFeeAsset(e), feeBefore)
}

func TestStepRegeneratesBookAroundNewPrice(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	e.step()

	snap := e.Depth(0)
	require.NotEmpty(t, snap.Asks)
	require.NotEmpty(t, snap.Bids)
	price := e.Ticker().LastPrice
	assert.Less(t, snap.Bids[0][0], price)
	assert.Greater(t, snap.Asks[0][0], price)
}

func TestSimulatedTakerFlow(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	prevAsks := []domain.BookLevel{level("0.001", "1000", 1)}
	prevBids := []domain.BookLevel{level("0.0009", "500", 1)}
	volumeBefore := e.baseVolume

	e.mu.Lock()
	e.price.observe(d("0.0011")) // through the prior best ask
	e.simulateTakersLocked(prevAsks, prevBids)
	e.mu.Unlock()

	fills := e.Orders().Orders
	require.Len(t, fills, 1)
	// The consumed resting ask was the maker side of the trade.
	assert.Equal(t, domain.SideSell, fills[0].Side)
	assert.Equal(t, string(domain.TypeLimit), fills[0].Type)
	assert.Equal(t, string(domain.OrderStatusFilled), fills[0].Status)
	assert.True(t, e.baseVolume.Equal(volumeBefore.Add(d("1000"))))
}

func TestPauseTradesSuppressesSimulatedFlow(t *testing.T) {
	cfg := testEngineConfig()
	cfg.PauseTrades = true
	e := startedEngine(t, cfg)

	for i := 0; i < 100; i++ {
		e.step()
	}
	assert.Zero(t, e.Orders().TotalOrders)
}

func TestRecentFillsCapped(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	for i := 0; i < maxRecentFills+10; i++ {
		_, err := e.PlaceMarketOrder(domain.SideBuy, d("1"))
		require.NoError(t, err)
	}

	var filled int
	for _, o := range e.Orders().Orders {
		if o.Status == string(domain.OrderStatusFilled) {
			filled++
		}
	}
	assert.Equal(t, maxRecentFills, filled)
}

func TestOrdersSnapshotComposesOpenState(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	lim, err := e.PlaceLimitOrder(domain.SideSell, d("0.0020"), d("500"), "")
	require.NoError(t, err)
	pos, err := e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	require.NoError(t, err)

	snap := e.Orders()
	require.Equal(t, 3, snap.TotalOrders)

	// Resting orders lead, then positions, then the fill history.
	assert.Equal(t, lim.ID, snap.Orders[0].OrderID)
	assert.Equal(t, string(domain.OrderStatusOpen), snap.Orders[0].Status)
	assert.Equal(t, string(domain.TypeLimit), snap.Orders[0].Type)

	assert.Equal(t, fmt.Sprintf("POS_%d", pos.ID), snap.Orders[1].OrderID)
	assert.Equal(t, string(domain.OrderStatusOpen), snap.Orders[1].Status)
	assert.Equal(t, string(domain.TypeMarket), snap.Orders[1].Type)
	assert.Equal(t, pos.EntryPrice.StringFixed(domain.PricePrecision), snap.Orders[1].Price)
	assert.Equal(t, "1000.00", snap.Orders[1].Size)

	assert.Equal(t, string(domain.OrderStatusFilled), snap.Orders[2].Status)
}

func TestAutoFillCarriesExactOrderSize(t *testing.T) {
	e := startedEngine(t, testEngineConfig())

	_, err := e.PlaceLimitOrder(domain.SideSell, d("0.0013"), d("123.456"), "")
	require.NoError(t, err)
	require.NoError(t, e.SetExternalMarket(d("0.00135"), nil, nil))

	positions := e.OpenPositions()
	require.Len(t, positions, 1)
	// The position takes the order's decimals, not the rendered strings.
	assert.True(t, positions[0].Amount.Equal(d("123.456")), "amount %s", positions[0].Amount)
	assert.True(t, positions[0].EntryPrice.Equal(d("0.0013")))
}

func TestExternalMarketSuspendsInternalTicks(t *testing.T) {
	e := startedEngine(t, testEngineConfig())
	asks := []domain.BookLevel{level("0.0013", "1000", 1)}
	bids := []domain.BookLevel{level("0.0012", "800", 2)}

	require.NoError(t, e.SetExternalMarket(d("0.00125"), asks, bids))
	before := e.Depth(0)

	e.step()

	// An externally fed engine must not overwrite the observed book.
	assert.Equal(t, before.Asks, e.Depth(0).Asks)
	assert.Equal(t, before.Bids, e.Depth(0).Bids)

	err := e.SetExternalMarket(d("0"), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestEventsPublishedOutsideMutationBoundary(t *testing.T) {
	var (
		mu       sync.Mutex
		channels []string
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := New(testEngineConfig(), logger, func(channel string, payload []byte) {
		mu.Lock()
		channels = append(channels, channel)
		mu.Unlock()
		require.NotEmpty(t, payload)
	})
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	_, err = e.PlaceMarketOrder(domain.SideBuy, d("1000"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, channels, domain.ChannelStatus)
	assert.Contains(t, channels, domain.ChannelBook)
	assert.Contains(t, channels, domain.ChannelOrders)
	assert.Contains(t, channels, domain.ChannelPositions)
}
