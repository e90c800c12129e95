// Package memory implements domain cache interfaces with in-process state.
// It serves single-node deployments and the test suites; multi-node
// deployments use the redis implementations instead.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// LockManager implements domain.LockManager with an in-process keyed mutex.
// The TTL parameter is ignored: in-process holders always release through the
// returned unlock function.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager creates an empty in-process lock manager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

// Acquire obtains the lock for key, returning domain.ErrLockHeld if another
// holder has it. The unlock function is safe to call multiple times.
func (lm *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.held[key] {
		return nil, domain.ErrLockHeld
	}
	lm.held[key] = true

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			lm.mu.Lock()
			delete(lm.held, key)
			lm.mu.Unlock()
		})
	}
	return unlock, nil
}

// ConsumedCache implements domain.ConsumedCache with an in-process set.
type ConsumedCache struct {
	mu     sync.Mutex
	hashes map[string]bool
}

// NewConsumedCache creates an empty consumed-order cache.
func NewConsumedCache() *ConsumedCache {
	return &ConsumedCache{hashes: make(map[string]bool)}
}

// Add records an order hash.
func (c *ConsumedCache) Add(_ context.Context, orderHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[orderHash] = true
	return nil
}

// Contains reports whether the order hash has been recorded.
func (c *ConsumedCache) Contains(_ context.Context, orderHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashes[orderHash], nil
}

// Compile-time interface checks.
var (
	_ domain.LockManager   = (*LockManager)(nil)
	_ domain.ConsumedCache = (*ConsumedCache)(nil)
)
