// Package remote is the REST client for an external exchange backend. In
// mirror mode the simulator reflects that backend's market instead of
// generating its own, and forwards order commands to it.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the REST client for the remote exchange frontend API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a remote exchange client. baseURL is the API root,
// e.g. "https://exchange.example.com". A zero timeout defaults to 30s.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetTicker returns the remote market summary for a contract.
func (c *Client) GetTicker(ctx context.Context, tickerID string) (Ticker, error) {
	path := "/frontend/ticker?" + url.Values{"ticker_id": {tickerID}}.Encode()

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Ticker{}, fmt.Errorf("remote: get ticker %s: %w", tickerID, err)
	}

	var t Ticker
	if err := json.Unmarshal(body, &t); err != nil {
		return Ticker{}, fmt.Errorf("remote: decode ticker: %w", err)
	}
	return t, nil
}

// GetDepth returns the remote order book for a contract.
func (c *Client) GetDepth(ctx context.Context, tickerID string) (Depth, error) {
	path := "/frontend/orderbook?" + url.Values{"ticker_id": {tickerID}}.Encode()

	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Depth{}, fmt.Errorf("remote: get depth %s: %w", tickerID, err)
	}

	var d Depth
	if err := json.Unmarshal(body, &d); err != nil {
		return Depth{}, fmt.Errorf("remote: decode depth: %w", err)
	}
	return d, nil
}

// GetAccount returns the remote account balances.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/frontend/account", nil)
	if err != nil {
		return Account{}, fmt.Errorf("remote: get account: %w", err)
	}

	var a Account
	if err := json.Unmarshal(body, &a); err != nil {
		return Account{}, fmt.Errorf("remote: decode account: %w", err)
	}
	return a, nil
}

// PlaceOrder forwards an order command to the remote backend and returns its
// acknowledgement.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/frontend/order", req)
	if err != nil {
		return OrderAck{}, fmt.Errorf("remote: place order: %w", err)
	}

	var ack OrderAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("remote: decode order ack: %w", err)
	}
	return ack, nil
}

// doRequest builds, sends, and reads an HTTP request against the remote
// backend, returning the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
