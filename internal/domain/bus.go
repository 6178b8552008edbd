package domain

import "context"

// SignalBus is the pub/sub boundary between the engine and its display
// collaborators (WebSocket hub, snapshot cache, trade archiver). Payloads
// are opaque JSON. Implementations must never be called while the engine's
// mutation boundary is held.
type SignalBus interface {
	// Publish sends a payload to a named channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of payloads for the named channel. The
	// subscription ends, and the returned channel closes, when ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Well-known signal bus channels.
const (
	ChannelTicks     = "ticks"
	ChannelBook      = "book"
	ChannelOrders    = "orders"
	ChannelPositions = "positions"
	ChannelTrades    = "trades"
	ChannelStatus    = "status"
)
