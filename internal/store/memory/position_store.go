package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// PositionStore is an in-memory domain.PositionStore preserving creation
// order per owner.
type PositionStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Position
	ordered []*domain.Position
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{byID: make(map[string]*domain.Position)}
}

// Create appends a new position.
func (s *PositionStore) Create(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[pos.ID]; ok {
		return domain.ErrAlreadyExists
	}
	p := pos
	s.byID[p.ID] = &p
	s.ordered = append(s.ordered, &p)
	return nil
}

// GetByID returns a single position, or domain.ErrNotFound.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return *p, nil
}

// UpdateStatus applies the active -> settled transition; re-settling a
// settled position is a no-op.
func (s *PositionStore) UpdateStatus(_ context.Context, id string, status domain.PositionStatus, pnl *int64) error {
	if status != domain.PositionStatusSettled {
		return domain.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status == domain.PositionStatusSettled {
		return nil
	}

	now := time.Now().UTC()
	p.Status = domain.PositionStatusSettled
	p.SettledAt = &now
	if pnl != nil {
		v := *pnl
		p.RealizedPnL = &v
	}
	return nil
}

// ListByOwner returns an owner's positions in creation order.
func (s *PositionStore) ListByOwner(_ context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []domain.Position
	for _, p := range s.ordered {
		if p.Owner == owner {
			positions = append(positions, *p)
		}
	}
	return paginate(positions, opts), nil
}

// Aggregate folds an owner's positions into summary counters.
func (s *PositionStore) Aggregate(_ context.Context, owner string) (domain.PositionAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var agg domain.PositionAggregate
	for _, p := range s.ordered {
		if p.Owner != owner {
			continue
		}
		agg.Count++
		agg.TotalPrincipal += p.Principal
		agg.TotalPremium += p.Premium
		if p.Status == domain.PositionStatusActive {
			agg.ValueLocked += p.Principal
		}
	}
	return agg, nil
}

// Totals folds the whole ledger into vault-wide counters.
func (s *PositionStore) Totals(_ context.Context) (domain.VaultTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t domain.VaultTotals
	for _, p := range s.ordered {
		t.PositionsCreated++
		t.PremiumEarned += p.Premium
		if p.Status == domain.PositionStatusActive {
			t.ValueLocked += p.Principal
		}
	}
	return t, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
