package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"perpsim/internal/domain"
)

// snapshotTTL expires stale snapshots so a restarted node never serves a
// market state from a dead simulator.
const snapshotTTL = 30 * time.Second

// SnapshotCache stores the latest JSON snapshot per event channel under
// "snapshot:{ticker}:{channel}". In full mode the app keeps it current from
// the signal bus so other nodes can serve reads without owning an engine.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(tickerID, channel string) string {
	return "snapshot:" + tickerID + ":" + channel
}

// Set stores the latest snapshot for a channel, refreshing the TTL.
func (sc *SnapshotCache) Set(ctx context.Context, tickerID, channel string, payload []byte) error {
	key := snapshotKey(tickerID, channel)
	if err := sc.rdb.Set(ctx, key, payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", key, err)
	}
	return nil
}

// Get retrieves the latest snapshot for a channel. It returns
// domain.ErrNotFound when no snapshot is stored or it has expired.
func (sc *SnapshotCache) Get(ctx context.Context, tickerID, channel string) ([]byte, error) {
	key := snapshotKey(tickerID, channel)
	payload, err := sc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get snapshot %s: %w", key, err)
	}
	return payload, nil
}
