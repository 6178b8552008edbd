// Package bus provides the in-process SignalBus used in single-node mode.
// The redis-backed implementation in internal/cache/redis replaces it when
// the engine runs with shared infrastructure.
package bus

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// Memory is an in-process publish/subscribe fanout. A slow subscriber drops
// messages rather than blocking the publisher.
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]*subscriber
}

type subscriber struct {
	ch     chan []byte
	closed chan struct{}
}

// NewMemory creates an empty bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*subscriber)}
}

// Publish delivers payload to every current subscriber of the channel.
func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs[channel] {
		select {
		case sub.ch <- payload:
		case <-sub.closed:
		default:
		}
	}
	return nil
}

// Subscribe registers a listener on the channel. The returned channel
// closes after ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscriber{
		ch:     make(chan []byte, subscriberBuffer),
		closed: make(chan struct{}),
	}

	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], sub)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(sub.closed)

		m.mu.Lock()
		subs := m.subs[channel]
		for i, s := range subs {
			if s == sub {
				m.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()

		close(sub.ch)
	}()

	return sub.ch, nil
}
