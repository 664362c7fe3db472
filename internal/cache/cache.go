// Package cache provides a small read-through cache for display data.
//
// Only derived, display-only values go through here (usage summaries).
// Entitlement decisions never read the cache; they always hit the database
// so admission guards see live balances.
package cache

import (
	"context"
	"time"
)

// Cache stores serialized values with a TTL. Implementations must treat
// every failure as a miss; the cache is an optimization, never a source of
// truth.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// noop ignores everything. Used when no Redis URL is configured.
type noop struct{}

// NewNoop returns a Cache that never hits.
func NewNoop() Cache {
	return noop{}
}

func (noop) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }

func (noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}

func (noop) Delete(ctx context.Context, key string) {}
