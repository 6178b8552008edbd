package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perpsim/internal/domain"
	"perpsim/internal/ledger"
)

// maxRecentFills caps the fill records kept for the orders endpoint.
const maxRecentFills = 20

// Config carries every engine parameter as exact decimals. Build one from
// the application config at wire time; Validate before use.
type Config struct {
	TickerID      string
	BaseCurrency  string
	QuoteCurrency string
	ProductType   string

	StartPrice   decimal.Decimal
	Volatility   decimal.Decimal
	TickInterval time.Duration
	Seed         uint64 // 0 draws a seed from the clock

	OrderLevels int
	SpreadPct   decimal.Decimal
	PriceStep   decimal.Decimal
	BaseLotSize decimal.Decimal
	MinLots     int
	MaxLots     int

	MakerFeeRate    decimal.Decimal
	TakerFeeRate    decimal.Decimal
	FundingRate     decimal.Decimal
	NextFundingRate decimal.Decimal
	NextFundingTime int64 // ms since epoch

	// USD marks of the two settlement assets; their ratio converts
	// quote-asset PnL into payout-asset units.
	PayoutAssetUSD decimal.Decimal
	FeeAssetUSD    decimal.Decimal

	MinOrderAmount decimal.Decimal
	MaxOrderAmount decimal.Decimal
	SeedVolume     decimal.Decimal

	UserBalances     domain.Balances
	ProtocolBalances domain.Balances

	ContractPrice         float64
	ContractPriceCurrency string

	// PauseTrades suppresses the simulated taker flow; prices still tick
	// and user orders still fill.
	PauseTrades bool
}

func (c Config) synthParams() synthParams {
	return synthParams{
		Levels:      c.OrderLevels,
		SpreadPct:   c.SpreadPct,
		PriceStep:   c.PriceStep,
		BaseLotSize: c.BaseLotSize,
		MinLots:     c.MinLots,
		MaxLots:     c.MaxLots,
	}
}

// conversionRate is the payout-asset units received per one quote-asset
// unit of PnL.
func (c Config) conversionRate() decimal.Decimal {
	return c.FeeAssetUSD.Div(c.PayoutAssetUSD)
}

// Validate checks every parameter, collecting nothing: the first violation
// is returned wrapped in domain.ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.TickerID == "":
		return fmt.Errorf("ticker id is required: %w", domain.ErrInvalidConfig)
	case !c.StartPrice.IsPositive():
		return fmt.Errorf("start price must be positive: %w", domain.ErrInvalidConfig)
	case c.Volatility.IsNegative() || c.Volatility.GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("volatility %s out of [0,1]: %w", c.Volatility, domain.ErrInvalidConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive: %w", domain.ErrInvalidConfig)
	case c.MakerFeeRate.IsNegative() || c.TakerFeeRate.IsNegative():
		return fmt.Errorf("fee rates must be non-negative: %w", domain.ErrInvalidConfig)
	case !c.PayoutAssetUSD.IsPositive() || !c.FeeAssetUSD.IsPositive():
		return fmt.Errorf("asset usd marks must be positive: %w", domain.ErrInvalidConfig)
	case !c.MinOrderAmount.IsPositive() || c.MaxOrderAmount.LessThan(c.MinOrderAmount):
		return fmt.Errorf("order amount bounds must satisfy 0 < min <= max: %w", domain.ErrInvalidConfig)
	case c.SeedVolume.IsNegative():
		return fmt.Errorf("seed volume must be non-negative: %w", domain.ErrInvalidConfig)
	}
	return c.synthParams().validate()
}

// event is a payload staged under the mutation boundary and published after
// it is released.
type event struct {
	channel string
	payload []byte
}

// Engine is the exchange core. One mutex serializes every state mutation;
// bus publication happens strictly outside it through notify.
type Engine struct {
	cfg    Config
	log    *slog.Logger
	notify func(channel string, payload []byte)

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	rng         *rand.Rand
	price       PriceState
	synthAsks   []domain.BookLevel
	synthBids   []domain.BookLevel
	book        limitBook
	positions   *ledger.PositionLedger
	settlement  *ledger.SettlementLedger
	txlog       *ledger.TransactionLog
	fills       []domain.FillRecord
	baseVolume  decimal.Decimal
	settledPnL  decimal.Decimal
	nextID      uint64
	external    bool
	pauseTrades bool
	now         func() time.Time
}

// New builds a stopped engine with the initial book already synthesized, so
// read endpoints work before Start.
func New(cfg Config, logger *slog.Logger, notify func(channel string, payload []byte)) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = func(string, []byte) {}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	e := &Engine{
		cfg:         cfg,
		log:         logger.With("component", "engine", "ticker", cfg.TickerID),
		notify:      notify,
		rng:         rand.New(rand.NewPCG(seed, seed<<1|1)),
		price:       newPriceState(cfg.StartPrice),
		positions:   ledger.NewPositionLedger(),
		settlement:  ledger.NewSettlementLedger(cfg.UserBalances, cfg.ProtocolBalances),
		txlog:       ledger.NewTransactionLog(),
		baseVolume:  cfg.SeedVolume,
		settledPnL:  decimal.Zero,
		pauseTrades: cfg.PauseTrades,
		now:         time.Now,
	}

	asks, bids, err := synthesize(e.price.Current, cfg.synthParams(), e.rng)
	if err != nil {
		return nil, err
	}
	e.synthAsks, e.synthBids = asks, bids
	return e, nil
}

// Start launches the tick loop. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.log.Info("simulation started", "interval", e.cfg.TickInterval.String())
	e.publish(event{domain.ChannelStatus, statusPayload(true)})

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.step()
			}
		}
	}()
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
// Calling Stop on a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	cancel()
	<-done
	e.log.Info("simulation stopped")
	e.publish(event{domain.ChannelStatus, statusPayload(false)})
}

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// step advances the market one tick: simulated taker flow against the prior
// book, a price move, a fresh synthetic book, and limit-order auto-fills.
func (e *Engine) step() {
	e.mu.Lock()
	if !e.running || e.external {
		e.mu.Unlock()
		return
	}

	prevAsks, prevBids := e.synthAsks, e.synthBids

	next, err := tickPrice(e.price, e.cfg.Volatility, e.rng)
	if err != nil {
		e.mu.Unlock()
		e.log.Error("price tick failed", "error", err)
		return
	}
	e.price = next

	asks, bids, err := synthesize(e.price.Current, e.cfg.synthParams(), e.rng)
	if err != nil {
		e.mu.Unlock()
		e.log.Error("book synthesis failed", "error", err)
		return
	}
	e.synthAsks, e.synthBids = asks, bids

	if !e.pauseTrades {
		e.simulateTakersLocked(prevAsks, prevBids)
	}
	filled := e.autoFillLocked()

	events := e.marketEventsLocked()
	if len(filled) > 0 {
		events = append(events,
			event{domain.ChannelOrders, e.ordersPayloadLocked()},
			event{domain.ChannelPositions, e.positionsPayloadLocked()},
		)
	}
	e.mu.Unlock()

	e.publish(events...)
}

// simulateTakersLocked records a synthetic maker fill whenever the new
// price trades through the previous best ask or bid. The consumed resting
// level was the maker, so an ask crossing records a SELL and a bid crossing
// a BUY, both as LIMIT fills. Fills are display records only; they move
// volume, not balances.
func (e *Engine) simulateTakersLocked(prevAsks, prevBids []domain.BookLevel) {
	if len(prevAsks) > 0 && e.price.Current.GreaterThanOrEqual(prevAsks[0].Price) {
		e.recordFillLocked(simFillID(), domain.SideSell, prevAsks[0].Price, prevAsks[0].Size, domain.TypeLimit)
		e.baseVolume = e.baseVolume.Add(prevAsks[0].Size)
	}
	if len(prevBids) > 0 && e.price.Current.LessThanOrEqual(prevBids[0].Price) {
		e.recordFillLocked(simFillID(), domain.SideBuy, prevBids[0].Price, prevBids[0].Size, domain.TypeLimit)
		e.baseVolume = e.baseVolume.Add(prevBids[0].Size)
	}
}

// autoFillLocked fills resting limit orders crossed by the current price
// and opens a position for each. The maker fee was collected at placement,
// so a fill has no fee side effect.
func (e *Engine) autoFillLocked() []domain.FillRecord {
	remaining, filled := autoFill(e.book.all(), e.price.Current)
	if len(filled) == 0 {
		return nil
	}
	e.book.replace(remaining)

	fills := make([]domain.FillRecord, 0, len(filled))
	for _, o := range filled {
		e.nextID++
		e.positions.Open(domain.Position{
			ID:         e.nextID,
			Side:       o.Side,
			Amount:     o.Size,
			EntryPrice: o.Price,
			OpenTime:   e.now(),
		})
		rec := fillRecord(o, e.cfg.TickerID)
		e.addRecentFillLocked(rec)
		fills = append(fills, rec)
		e.baseVolume = e.baseVolume.Add(o.Size)
		e.log.Info("limit order filled", "order_id", o.ID, "side", o.Side, "price", o.Price.String(), "size", o.Size.String())
	}
	return fills
}

// PlaceMarketOrder executes immediately at the best opposing price, opens a
// position, and consumes synthetic depth. User resting orders set the top
// of book but are never consumed.
func (e *Engine) PlaceMarketOrder(side domain.Side, amount decimal.Decimal) (domain.Position, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return domain.Position{}, domain.ErrNotRunning
	}
	if amount.LessThan(e.cfg.MinOrderAmount) || amount.GreaterThan(e.cfg.MaxOrderAmount) {
		e.mu.Unlock()
		return domain.Position{}, fmt.Errorf("amount %s out of [%s, %s]: %w",
			amount, e.cfg.MinOrderAmount, e.cfg.MaxOrderAmount, domain.ErrInvalidOrder)
	}

	opp := side.Opposite()
	var merged []domain.BookLevel
	if side == domain.SideBuy {
		merged = mergeBook(e.synthAsks, e.book.bySide(opp), opp)
	} else {
		merged = mergeBook(e.synthBids, e.book.bySide(opp), opp)
	}
	exec, ok := bestPrice(merged)
	if !ok {
		e.mu.Unlock()
		return domain.Position{}, fmt.Errorf("no %s liquidity: %w", opp, domain.ErrEmptyBook)
	}

	if e.settlement.User().PayoutAsset.LessThan(amount) {
		e.mu.Unlock()
		return domain.Position{}, fmt.Errorf("collateral %s exceeds payout balance: %w",
			amount, domain.ErrInsufficientBalance)
	}
	if err := e.settlement.CollectFee(e.feeFor(amount, e.cfg.TakerFeeRate)); err != nil {
		e.mu.Unlock()
		return domain.Position{}, err
	}

	if side == domain.SideBuy {
		e.synthAsks = consumeSynthetic(e.synthAsks, amount)
	} else {
		e.synthBids = consumeSynthetic(e.synthBids, amount)
	}

	e.nextID++
	pos := domain.Position{
		ID:         e.nextID,
		Side:       side,
		Amount:     amount,
		EntryPrice: exec,
		OpenTime:   e.now(),
	}
	e.positions.Open(pos)
	e.recordFillLocked(fmt.Sprintf("MKT_%d", pos.ID), side, exec, amount, domain.TypeMarket)
	e.baseVolume = e.baseVolume.Add(amount)

	events := []event{
		{domain.ChannelBook, e.depthPayloadLocked()},
		{domain.ChannelOrders, e.ordersPayloadLocked()},
		{domain.ChannelPositions, e.positionsPayloadLocked()},
	}
	e.mu.Unlock()

	e.log.Info("market order filled", "side", side, "amount", amount.String(), "price", exec.String())
	e.publish(events...)
	return pos, nil
}

// PlaceLimitOrder rests an order in the book. The maker fee is charged up
// front at placement and is not refunded on cancel.
func (e *Engine) PlaceLimitOrder(side domain.Side, price, size decimal.Decimal, owner string) (domain.LimitOrder, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return domain.LimitOrder{}, domain.ErrNotRunning
	}
	if size.LessThan(e.cfg.MinOrderAmount) || size.GreaterThan(e.cfg.MaxOrderAmount) {
		e.mu.Unlock()
		return domain.LimitOrder{}, fmt.Errorf("size %s out of [%s, %s]: %w",
			size, e.cfg.MinOrderAmount, e.cfg.MaxOrderAmount, domain.ErrInvalidOrder)
	}
	if !price.IsPositive() {
		e.mu.Unlock()
		return domain.LimitOrder{}, fmt.Errorf("limit price must be positive: %w", domain.ErrInvalidOrder)
	}
	if err := e.settlement.CollectFee(e.feeFor(size, e.cfg.MakerFeeRate)); err != nil {
		e.mu.Unlock()
		return domain.LimitOrder{}, err
	}

	e.nextID++
	id := fmt.Sprintf("LIMIT_%d", e.nextID)
	order, err := e.book.submit(id, side, price, size, owner, e.now())
	if err != nil {
		e.mu.Unlock()
		return domain.LimitOrder{}, err
	}

	events := []event{
		{domain.ChannelBook, e.depthPayloadLocked()},
		{domain.ChannelOrders, e.ordersPayloadLocked()},
	}
	e.mu.Unlock()

	e.log.Info("limit order placed", "order_id", id, "side", side, "price", price.String(), "size", size.String())
	e.publish(events...)
	return order, nil
}

// CancelLimitOrder removes a resting order. The placement fee stays
// collected.
func (e *Engine) CancelLimitOrder(id string) (domain.LimitOrder, error) {
	e.mu.Lock()
	order, err := e.book.cancel(id)
	if err != nil {
		e.mu.Unlock()
		return domain.LimitOrder{}, err
	}
	events := []event{
		{domain.ChannelBook, e.depthPayloadLocked()},
		{domain.ChannelOrders, e.ordersPayloadLocked()},
	}
	e.mu.Unlock()

	e.log.Info("limit order cancelled", "order_id", id)
	e.publish(events...)
	return order, nil
}

// ClosePosition settles a position at the current reference price and logs
// the resulting transaction.
func (e *Engine) ClosePosition(id uint64) (domain.Transaction, error) {
	e.mu.Lock()
	exit := e.price.Current
	res, err := e.positions.Close(id, exit, e.cfg.conversionRate())
	if err != nil {
		e.mu.Unlock()
		return domain.Transaction{}, err
	}
	e.settlement.TransferPnL(res.PnL)
	e.settledPnL = e.settledPnL.Sub(res.PnL)

	tx := domain.Transaction{
		ID:          res.Position.ID,
		Side:        res.Position.Side,
		Amount:      res.Position.Amount,
		EntryPrice:  res.Position.EntryPrice,
		ExitPrice:   exit,
		RealizedPnL: res.PnL,
		CloseTime:   e.now(),
	}
	e.txlog.Append(tx)

	payload, _ := marshalEvent(tx)
	events := []event{
		{domain.ChannelTrades, payload},
		{domain.ChannelPositions, e.positionsPayloadLocked()},
	}
	e.mu.Unlock()

	e.log.Info("position closed", "id", id, "exit", exit.String(), "pnl", res.PnL.String())
	e.publish(events...)
	return tx, nil
}

// Convert exchanges fee asset for payout asset at the configured USD ratio.
func (e *Engine) Convert(feeAmount decimal.Decimal) error {
	if !feeAmount.IsPositive() {
		return fmt.Errorf("convert amount must be positive: %w", domain.ErrInvalidOrder)
	}
	e.mu.Lock()
	err := e.settlement.Convert(feeAmount, e.cfg.conversionRate())
	e.mu.Unlock()
	if err == nil {
		e.log.Info("converted fee asset", "amount", feeAmount.String())
	}
	return err
}

// SetExternalMarket replaces the synthetic market with an externally
// observed one. The internal price walk and book synthesis stay suspended
// while the engine is externally fed; user limit orders still auto-fill
// against the observed price.
func (e *Engine) SetExternalMarket(price decimal.Decimal, asks, bids []domain.BookLevel) error {
	if !price.IsPositive() {
		return fmt.Errorf("external price must be positive: %w", domain.ErrInvalidConfig)
	}
	e.mu.Lock()
	e.external = true
	e.price.observe(price)
	e.synthAsks, e.synthBids = asks, bids
	filled := e.autoFillLocked()

	events := e.marketEventsLocked()
	if len(filled) > 0 {
		events = append(events,
			event{domain.ChannelOrders, e.ordersPayloadLocked()},
			event{domain.ChannelPositions, e.positionsPayloadLocked()},
		)
	}
	e.mu.Unlock()

	e.publish(events...)
	return nil
}

// SetPauseTrades toggles the simulated taker flow.
func (e *Engine) SetPauseTrades(paused bool) {
	e.mu.Lock()
	e.pauseTrades = paused
	e.mu.Unlock()
}

// feeFor computes a fee in fee-asset units: the USD notional of the amount
// at the payout-asset mark, times the rate, at the fee-asset mark.
func (e *Engine) feeFor(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(e.cfg.PayoutAssetUSD).Mul(rate).Div(e.cfg.FeeAssetUSD)
}

func (e *Engine) recordFillLocked(id string, side domain.Side, price, size decimal.Decimal, typ domain.OrderType) {
	e.addRecentFillLocked(domain.FillRecord{
		OrderID:  id,
		TickerID: e.cfg.TickerID,
		Side:     side,
		Price:    price.StringFixed(domain.PricePrecision),
		Size:     size.StringFixed(domain.SizePrecision),
		Status:   string(domain.OrderStatusFilled),
		Type:     string(typ),
	})
}

func (e *Engine) addRecentFillLocked(f domain.FillRecord) {
	e.fills = append([]domain.FillRecord{f}, e.fills...)
	if len(e.fills) > maxRecentFills {
		e.fills = e.fills[:maxRecentFills]
	}
}

func (e *Engine) publish(events ...event) {
	for _, ev := range events {
		if ev.payload == nil {
			continue
		}
		e.notify(ev.channel, ev.payload)
	}
}
