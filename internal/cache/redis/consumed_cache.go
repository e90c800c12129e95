package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// consumedSetKey holds the fast-path mirror of the consumed-order set. The
// durable source of truth is the postgres consumed_orders table; this set
// only short-circuits replay checks.
const consumedSetKey = "consumed:orders"

// ConsumedCache implements domain.ConsumedCache using a Redis set.
type ConsumedCache struct {
	rdb *redis.Client
}

// NewConsumedCache creates a ConsumedCache backed by the given Client.
func NewConsumedCache(c *Client) *ConsumedCache {
	return &ConsumedCache{rdb: c.Underlying()}
}

// Add records an order hash in the cache.
func (cc *ConsumedCache) Add(ctx context.Context, orderHash string) error {
	if err := cc.rdb.SAdd(ctx, consumedSetKey, orderHash).Err(); err != nil {
		return fmt.Errorf("redis: add consumed order %s: %w", orderHash, err)
	}
	return nil
}

// Contains reports whether the order hash is in the cache. A miss is not
// authoritative; callers must fall through to the durable store.
func (cc *ConsumedCache) Contains(ctx context.Context, orderHash string) (bool, error) {
	ok, err := cc.rdb.SIsMember(ctx, consumedSetKey, orderHash).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check consumed order %s: %w", orderHash, err)
	}
	return ok, nil
}

// Compile-time interface check.
var _ domain.ConsumedCache = (*ConsumedCache)(nil)
