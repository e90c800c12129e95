// Package memory implements the domain store interfaces with in-process
// maps. It backs the dev mode and the service test suites; semantics mirror
// the postgres implementations, including the guarded balance updates.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// AccountStore is an in-memory domain.AccountStore.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]domain.CollateralAccount
}

// NewAccountStore creates an empty in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.CollateralAccount)}
}

// Get returns the account for owner, or domain.ErrNotFound.
func (s *AccountStore) Get(_ context.Context, owner string) (domain.CollateralAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[owner]
	if !ok {
		return domain.CollateralAccount{}, domain.ErrNotFound
	}
	return a, nil
}

// Upsert creates or replaces the account row.
func (s *AccountStore) Upsert(_ context.Context, account domain.CollateralAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.UpdatedAt = time.Now().UTC()
	s.accounts[account.Owner] = account
	return nil
}

// AddAvailable adjusts the available balance by delta.
func (s *AccountStore) AddAvailable(_ context.Context, owner string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.accounts[owner]
	a.Owner = owner
	if a.Available+delta < 0 {
		return domain.ErrInsufficientFunds
	}
	a.Available += delta
	a.UpdatedAt = time.Now().UTC()
	s.accounts[owner] = a
	return nil
}

// MoveToLocked moves amount from available to locked.
func (s *AccountStore) MoveToLocked(_ context.Context, owner string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[owner]
	if !ok || a.Available < amount {
		return domain.ErrInsufficientFunds
	}
	a.Available -= amount
	a.Locked += amount
	a.UpdatedAt = time.Now().UTC()
	s.accounts[owner] = a
	return nil
}

// ResolveLock removes amount from locked and credits refund back to available.
func (s *AccountStore) ResolveLock(_ context.Context, owner string, amount, refund int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[owner]
	if !ok || a.Locked < amount {
		return domain.ErrInvariant
	}
	a.Locked -= amount
	a.Available += refund
	a.UpdatedAt = time.Now().UTC()
	s.accounts[owner] = a
	return nil
}

// SetFrozen flips the frozen flag.
func (s *AccountStore) SetFrozen(_ context.Context, owner string, frozen bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[owner]
	if !ok {
		return domain.ErrNotFound
	}
	a.Frozen = frozen
	a.UpdatedAt = time.Now().UTC()
	s.accounts[owner] = a
	return nil
}

// List returns accounts ordered by owner.
func (s *AccountStore) List(_ context.Context, opts domain.ListOpts) ([]domain.CollateralAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make([]string, 0, len(s.accounts))
	for owner := range s.accounts {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	accounts := make([]domain.CollateralAccount, 0, len(owners))
	for _, owner := range owners {
		accounts = append(accounts, s.accounts[owner])
	}
	return paginate(accounts, opts), nil
}

// paginate applies Limit/Offset to a slice.
func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
