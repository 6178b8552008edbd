package remote

// Ticker is the remote market summary in the frontend API shape. Prices and
// sizes arrive as strings and are parsed at the feed boundary.
type Ticker struct {
	TickerID  string `json:"ticker_id"`
	LastPrice string `json:"last_price"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Timestamp int64  `json:"timestamp"`
}

// Depth is the remote order book: best price first on both sides, each
// level as [price, size].
type Depth struct {
	TickerID  string      `json:"ticker_id"`
	Timestamp int64       `json:"timestamp"`
	Asks      [][2]string `json:"asks"`
	Bids      [][2]string `json:"bids"`
}

// Account is the remote account balance report.
type Account struct {
	PayoutAsset string `json:"payout_asset"`
	FeeAsset    string `json:"fee_asset"`
}

// OrderRequest is an order command forwarded to the remote backend.
type OrderRequest struct {
	TickerID string `json:"ticker_id"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Price    string `json:"price,omitempty"`
}

// OrderAck is the remote backend's acknowledgement of an order command.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
