// Package dedup suppresses duplicate webhook deliveries. Platforms redeliver
// events they believe were not acknowledged; answering each redelivery would
// spam the conversation, so the first sighting of an event ID wins.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Deduper reports whether an event key has been seen within the retention
// window, marking it seen as a side effect.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Memory is the single-process fallback. Expired keys are swept lazily on
// each call.
type Memory struct {
	ttl time.Duration

	mu   sync.Mutex
	keys map[string]time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Memory{ttl: ttl, keys: make(map[string]time.Time)}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, expires := range m.keys {
		if now.After(expires) {
			delete(m.keys, k)
		}
	}

	if _, ok := m.keys[key]; ok {
		return true, nil
	}
	m.keys[key] = now.Add(m.ttl)
	return false, nil
}
