package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// ConsumedOrderStore is an in-memory domain.ConsumedOrderStore.
type ConsumedOrderStore struct {
	mu       sync.Mutex
	consumed map[string]string // order hash -> position id
}

// NewConsumedOrderStore creates an empty consumed-order set.
func NewConsumedOrderStore() *ConsumedOrderStore {
	return &ConsumedOrderStore{consumed: make(map[string]string)}
}

// Mark records the order hash; marking twice returns domain.ErrAlreadyExists.
func (s *ConsumedOrderStore) Mark(_ context.Context, orderHash, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consumed[orderHash]; ok {
		return domain.ErrAlreadyExists
	}
	s.consumed[orderHash] = positionID
	return nil
}

// IsConsumed reports whether the order hash is in the set.
func (s *ConsumedOrderStore) IsConsumed(_ context.Context, orderHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.consumed[orderHash]
	return ok, nil
}

// Compile-time interface check.
var _ domain.ConsumedOrderStore = (*ConsumedOrderStore)(nil)
