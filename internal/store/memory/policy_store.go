package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// PolicyStore is an in-memory domain.PolicyStore.
type PolicyStore struct {
	mu     sync.Mutex
	policy *domain.FeePolicy
}

// NewPolicyStore creates an empty policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{}
}

// Load returns the stored policy, or domain.ErrNotFound.
func (s *PolicyStore) Load(_ context.Context) (domain.FeePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.policy == nil {
		return domain.FeePolicy{}, domain.ErrNotFound
	}
	return *s.policy, nil
}

// Save stores the policy.
func (s *PolicyStore) Save(_ context.Context, policy domain.FeePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := policy
	s.policy = &p
	return nil
}

// Compile-time interface check.
var _ domain.PolicyStore = (*PolicyStore)(nil)
