package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/internal/domain"
	"perpsim/internal/platform/remote"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTrading implements TradingService with canned responses.
type fakeTrading struct {
	marketErr error
	limitErr  error
	cancelErr error
	orders    []domain.LimitOrder

	gotSide   domain.Side
	gotAmount decimal.Decimal
}

func (f *fakeTrading) PlaceMarketOrder(side domain.Side, amount decimal.Decimal) (domain.Position, error) {
	f.gotSide, f.gotAmount = side, amount
	if f.marketErr != nil {
		return domain.Position{}, f.marketErr
	}
	return domain.Position{ID: 1, Side: side, Amount: amount, EntryPrice: decimal.NewFromFloat(0.0012352), OpenTime: time.Now()}, nil
}

func (f *fakeTrading) PlaceLimitOrder(side domain.Side, price, size decimal.Decimal, owner string) (domain.LimitOrder, error) {
	if f.limitErr != nil {
		return domain.LimitOrder{}, f.limitErr
	}
	return domain.LimitOrder{ID: "LIMIT_1", Side: side, Price: price, Size: size, Status: domain.OrderStatusOpen, Owner: owner}, nil
}

func (f *fakeTrading) CancelLimitOrder(id string) (domain.LimitOrder, error) {
	if f.cancelErr != nil {
		return domain.LimitOrder{}, f.cancelErr
	}
	return domain.LimitOrder{ID: id, Status: domain.OrderStatusCancelled}, nil
}

func (f *fakeTrading) OpenOrders() []domain.LimitOrder { return f.orders }

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestOrderHandlerPlaceMarket(t *testing.T) {
	ft := &fakeTrading{}
	h := NewOrderHandler(ft, nil, "BCRD-PERPBNB", discardLogger())

	rec := postJSON(t, h.Place, `{"side":"buy","type":"MARKET","amount":"250"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.SideBuy, ft.gotSide)
	assert.True(t, ft.gotAmount.Equal(decimal.NewFromInt(250)))
	assert.Contains(t, rec.Body.String(), `"FILLED"`)
}

func TestOrderHandlerPlaceLimit(t *testing.T) {
	h := NewOrderHandler(&fakeTrading{}, nil, "BCRD-PERPBNB", discardLogger())

	rec := postJSON(t, h.Place, `{"side":"SELL","type":"LIMIT","amount":"100","price":"0.0013"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"LIMIT_1"`)
}

func TestOrderHandlerValidation(t *testing.T) {
	h := NewOrderHandler(&fakeTrading{}, nil, "BCRD-PERPBNB", discardLogger())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad side", `{"side":"HOLD","type":"MARKET","amount":"10"}`},
		{"bad amount", `{"side":"BUY","type":"MARKET","amount":"ten"}`},
		{"bad type", `{"side":"BUY","type":"STOP","amount":"10"}`},
		{"limit without price", `{"side":"BUY","type":"LIMIT","amount":"10"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Place, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestOrderHandlerDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"empty book", domain.ErrEmptyBook, http.StatusConflict},
		{"not running", domain.ErrNotRunning, http.StatusConflict},
		{"invalid order", domain.ErrInvalidOrder, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(&fakeTrading{marketErr: tt.err}, nil, "BCRD-PERPBNB", discardLogger())
			rec := postJSON(t, h.Place, `{"side":"BUY","type":"MARKET","amount":"10"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestOrderHandlerCancel(t *testing.T) {
	h := NewOrderHandler(&fakeTrading{}, nil, "BCRD-PERPBNB", discardLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/orders/LIMIT_7", nil)
	req.SetPathValue("id", "LIMIT_7")
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"CANCELLED"`)
}

func TestOrderHandlerCancelNotFound(t *testing.T) {
	h := NewOrderHandler(&fakeTrading{cancelErr: domain.ErrNotFound}, nil, "BCRD-PERPBNB", discardLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/orders/LIMIT_99", nil)
	req.SetPathValue("id", "LIMIT_99")
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// fakeForwarder implements OrderForwarder.
type fakeForwarder struct {
	ack remote.OrderAck
	err error
	got remote.OrderRequest
}

func (f *fakeForwarder) PlaceOrder(_ context.Context, req remote.OrderRequest) (remote.OrderAck, error) {
	f.got = req
	return f.ack, f.err
}

func TestOrderHandlerForwardsWhenMirroring(t *testing.T) {
	fw := &fakeForwarder{ack: remote.OrderAck{OrderID: "R-123", Status: "ACCEPTED"}}
	h := NewOrderHandler(&fakeTrading{}, fw, "BCRD-PERPBNB", discardLogger())

	rec := postJSON(t, h.Place, `{"side":"buy","type":"market","amount":"50"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "BCRD-PERPBNB", fw.got.TickerID)
	assert.Equal(t, "BUY", fw.got.Side)
	assert.Contains(t, rec.Body.String(), "R-123")
}

func TestOrderHandlerForwardFailure(t *testing.T) {
	fw := &fakeForwarder{err: errors.New("connection refused")}
	h := NewOrderHandler(&fakeTrading{}, fw, "BCRD-PERPBNB", discardLogger())

	rec := postJSON(t, h.Place, `{"side":"BUY","type":"MARKET","amount":"50"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// fakePositions implements PositionService.
type fakePositions struct {
	closeErr error
	txs      []domain.Transaction
}

func (f *fakePositions) OpenPositions() []domain.Position { return nil }

func (f *fakePositions) ClosePosition(id uint64) (domain.Transaction, error) {
	if f.closeErr != nil {
		return domain.Transaction{}, f.closeErr
	}
	return domain.Transaction{ID: id, Side: domain.SideBuy}, nil
}

func (f *fakePositions) Transactions() []domain.Transaction { return f.txs }

func TestPositionHandlerClose(t *testing.T) {
	h := NewPositionHandler(&fakePositions{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/3/close", nil)
	req.SetPathValue("id", "3")
	rec := httptest.NewRecorder()
	h.Close(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"CLOSED"`)
}

func TestPositionHandlerCloseNonFinitePnL(t *testing.T) {
	h := NewPositionHandler(&fakePositions{closeErr: domain.ErrNonFinitePnL}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/3/close", nil)
	req.SetPathValue("id", "3")
	rec := httptest.NewRecorder()
	h.Close(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPositionHandlerCloseBadID(t *testing.T) {
	h := NewPositionHandler(&fakePositions{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/positions/abc/close", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	h.Close(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositionHandlerTransactionLimit(t *testing.T) {
	txs := make([]domain.Transaction, 10)
	for i := range txs {
		txs[i] = domain.Transaction{ID: uint64(i + 1)}
	}
	h := NewPositionHandler(&fakePositions{txs: txs}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/transactions?limit=3", nil)
	rec := httptest.NewRecorder()
	h.ListTransactions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":3`)
}

// fakeMarket implements MarketService.
type fakeMarket struct {
	gotDepth int
}

func (f *fakeMarket) Ticker() domain.TickerSnapshot { return domain.TickerSnapshot{TickerID: "BCRD-PERPBNB"} }
func (f *fakeMarket) Specs() domain.ContractSpecs   { return domain.ContractSpecs{TickerID: "BCRD-PERPBNB"} }
func (f *fakeMarket) Orders() domain.OrdersSnapshot { return domain.OrdersSnapshot{} }

func (f *fakeMarket) Depth(depth int) domain.DepthSnapshot {
	f.gotDepth = depth
	return domain.DepthSnapshot{TickerID: "BCRD-PERPBNB"}
}

func marketGet(t *testing.T, h http.HandlerFunc, target, ticker string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.SetPathValue("ticker", ticker)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestMarketHandlerUnknownTicker(t *testing.T) {
	h := NewMarketHandler(&fakeMarket{}, "BCRD-PERPBNB", 50, discardLogger())

	rec := marketGet(t, h.GetContract, "/v1/contracts/OTHER", "OTHER")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarketHandlerOrderbookDepth(t *testing.T) {
	fm := &fakeMarket{}
	h := NewMarketHandler(fm, "BCRD-PERPBNB", 50, discardLogger())

	rec := marketGet(t, h.GetOrderbook, "/v1/orderbook/BCRD-PERPBNB?depth=5", "BCRD-PERPBNB")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, fm.gotDepth)

	rec = marketGet(t, h.GetOrderbook, "/v1/orderbook/BCRD-PERPBNB", "BCRD-PERPBNB")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, fm.gotDepth)

	rec = marketGet(t, h.GetOrderbook, "/v1/orderbook/BCRD-PERPBNB?depth=-1", "BCRD-PERPBNB")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// fakeAccount implements AccountService.
type fakeAccount struct {
	convertErr error
	got        decimal.Decimal
}

func (f *fakeAccount) Account() domain.AccountSnapshot {
	return domain.AccountSnapshot{SettledPnL: "0"}
}

func (f *fakeAccount) Convert(amount decimal.Decimal) error {
	f.got = amount
	return f.convertErr
}

func TestAccountHandlerConvert(t *testing.T) {
	fa := &fakeAccount{}
	h := NewAccountHandler(fa, nil, discardLogger())

	rec := postJSON(t, h.Convert, `{"amount":"2.5"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fa.got.Equal(decimal.NewFromFloat(2.5)))
}

func TestAccountHandlerConvertRejectsBadAmount(t *testing.T) {
	h := NewAccountHandler(&fakeAccount{}, nil, discardLogger())

	rec := postJSON(t, h.Convert, `{"amount":"lots"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// fakeAccountSource implements AccountSource.
type fakeAccountSource struct {
	acct remote.Account
	err  error
}

func (f *fakeAccountSource) GetAccount(context.Context) (remote.Account, error) {
	return f.acct, f.err
}

func TestAccountHandlerMirrorsRemoteAccount(t *testing.T) {
	src := &fakeAccountSource{acct: remote.Account{PayoutAsset: "42", FeeAsset: "7"}}
	h := NewAccountHandler(&fakeAccount{}, src, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()
	h.GetAccount(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "42")

	src.err = errors.New("remote down")
	rec = httptest.NewRecorder()
	h.GetAccount(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// fakeBot implements BotService.
type fakeBot struct {
	running bool
	paused  bool
}

func (f *fakeBot) Start()                     { f.running = true }
func (f *fakeBot) Stop()                      { f.running = false }
func (f *fakeBot) Running() bool              { return f.running }
func (f *fakeBot) SetPauseTrades(paused bool) { f.paused = paused }

func TestBotHandlerLifecycle(t *testing.T) {
	fb := &fakeBot{}
	h := NewBotHandler(fb, discardLogger())

	rec := postJSON(t, h.Start, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fb.running)
	assert.Contains(t, rec.Body.String(), `"running":true`)

	rec = postJSON(t, h.Stop, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, fb.running)

	rec = postJSON(t, h.Pause, `{"paused":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fb.paused)
}
