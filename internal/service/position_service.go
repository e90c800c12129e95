package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// PositionService fronts the position ledger. Positions are created by the
// settlement engine; this service serves reads and the single allowed status
// transition.
type PositionService struct {
	positions domain.PositionStore
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(positions domain.PositionStore, audit domain.AuditStore, logger *slog.Logger) *PositionService {
	return &PositionService{
		positions: positions,
		audit:     audit,
		logger:    logger.With(slog.String("component", "positions")),
	}
}

// Record appends a new position to the ledger.
func (s *PositionService) Record(ctx context.Context, pos domain.Position) error {
	if err := s.positions.Create(ctx, pos); err != nil {
		return fmt.Errorf("positions: record %s: %w", pos.ID, err)
	}
	return nil
}

// Settle transitions a position from active to settled, optionally recording
// realized PnL. Settling an already-settled position is a no-op.
func (s *PositionService) Settle(ctx context.Context, id string, pnl *int64) error {
	if err := s.positions.UpdateStatus(ctx, id, domain.PositionStatusSettled, pnl); err != nil {
		return err
	}

	detail := map[string]any{"position_id": id}
	if pnl != nil {
		detail["realized_pnl"] = *pnl
	}
	_ = s.audit.Log(ctx, "position_settled", detail)
	return nil
}

// Positions returns an owner's positions in creation order.
func (s *PositionService) Positions(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListByOwner(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("positions: list %s: %w", owner, err)
	}
	return positions, nil
}

// Get returns a single position by id.
func (s *PositionService) Get(ctx context.Context, id string) (domain.Position, error) {
	return s.positions.GetByID(ctx, id)
}

// Aggregate folds an owner's positions into summary counters.
func (s *PositionService) Aggregate(ctx context.Context, owner string) (domain.PositionAggregate, error) {
	agg, err := s.positions.Aggregate(ctx, owner)
	if err != nil {
		return domain.PositionAggregate{}, fmt.Errorf("positions: aggregate %s: %w", owner, err)
	}
	return agg, nil
}

// PremiumEarned returns the owner's total net premium across all positions.
func (s *PositionService) PremiumEarned(ctx context.Context, owner string) (int64, error) {
	agg, err := s.Aggregate(ctx, owner)
	if err != nil {
		return 0, err
	}
	return agg.TotalPremium, nil
}

// Totals returns the vault-wide counters.
func (s *PositionService) Totals(ctx context.Context) (domain.VaultTotals, error) {
	totals, err := s.positions.Totals(ctx)
	if err != nil {
		return domain.VaultTotals{}, fmt.Errorf("positions: totals: %w", err)
	}
	return totals, nil
}
