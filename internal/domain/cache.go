package domain

import (
	"context"
	"time"
)

// LockManager serializes access to a keyed critical section. Settlement uses
// it per owner so concurrent settlements for one account cannot oversubscribe
// available collateral, while unrelated owners proceed in parallel.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ConsumedCache is a fast-path view of the consumed-order set. Misses fall
// through to the durable ConsumedOrderStore; the cache is advisory only.
type ConsumedCache interface {
	Add(ctx context.Context, orderHash string) error
	Contains(ctx context.Context, orderHash string) (bool, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// EventBus provides pub/sub fan-out of vault events to subscribers such as
// the WebSocket hub.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
