package domain

// Read-only snapshot shapes exposed to display and API-reporting
// collaborators. Numeric fields are pre-formatted strings at the venue's
// price (7) and size (2) precision, matching the public contract.

// TickerSnapshot is the per-contract market summary.
type TickerSnapshot struct {
	TickerID                  string `json:"ticker_id"`
	BaseCurrency              string `json:"base_currency"`
	QuoteCurrency             string `json:"quote_currency"`
	LastPrice                 string `json:"last_price"`
	Bid                       string `json:"bid"`
	Ask                       string `json:"ask"`
	High                      string `json:"high"`
	Low                       string `json:"low"`
	BaseVolume                string `json:"base_volume"`
	QuoteVolume               string `json:"quote_volume"`
	USDVolume                 string `json:"usd_volume"`
	Volume24h                 string `json:"volume_24h"`
	Trades24h                 int    `json:"trades_24h"`
	ProductType               string `json:"product_type"`
	FundingRate               string `json:"funding_rate"`
	NextFundingRate           string `json:"next_funding_rate"`
	NextFundingRateTimestamp  int64  `json:"next_funding_rate_timestamp"`
	MakerFee                  string `json:"maker_fee"`
	TakerFee                  string `json:"taker_fee"`
	Timestamp                 int64  `json:"timestamp"`
}

// ContractSpecs describes the static contract parameters.
type ContractSpecs struct {
	TickerID              string  `json:"ticker_id"`
	ContractType          string  `json:"contract_type"`
	ContractPrice         float64 `json:"contract_price"`
	ContractPriceCurrency string  `json:"contract_price_currency"`
	Timestamp             int64   `json:"timestamp"`
}

// DepthSnapshot is the merged order book, best price first on both sides,
// each level as [price, size].
type DepthSnapshot struct {
	TickerID  string      `json:"ticker_id"`
	Timestamp int64       `json:"timestamp"`
	Asks      [][2]string `json:"asks"`
	Bids      [][2]string `json:"bids"`
	TotalAsks int         `json:"total_asks"`
	TotalBids int         `json:"total_bids"`
}

// OrdersSnapshot lists open limit orders, open positions, and recent fills
// in a single flat record shape.
type OrdersSnapshot struct {
	TickerID    string       `json:"ticker_id"`
	Timestamp   int64        `json:"timestamp"`
	Orders      []FillRecord `json:"orders"`
	TotalOrders int          `json:"total_orders"`
}

// AccountSnapshot bundles both wallets and the protocol's cumulative settled
// PnL for reporting.
type AccountSnapshot struct {
	User       Balances `json:"user"`
	Protocol   Balances `json:"protocol"`
	SettledPnL string   `json:"settled_pnl"`
}
