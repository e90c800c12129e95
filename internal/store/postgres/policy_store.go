package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// PolicyStore implements domain.PolicyStore using a single-row PostgreSQL
// table.
type PolicyStore struct {
	pool *pgxpool.Pool
}

// NewPolicyStore creates a store backed by the given pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

// Load returns the persisted fee policy, or domain.ErrNotFound when no policy
// has been saved yet.
func (s *PolicyStore) Load(ctx context.Context) (domain.FeePolicy, error) {
	const query = `
		SELECT version, platform_fee_bps, referrer, min_collateral, paused,
		       updated_at, updated_by
		FROM fee_policy WHERE id = 1`

	var p domain.FeePolicy
	err := s.pool.QueryRow(ctx, query).Scan(
		&p.Version, &p.PlatformFeeBps, &p.Referrer, &p.MinCollateral,
		&p.Paused, &p.UpdatedAt, &p.UpdatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FeePolicy{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FeePolicy{}, fmt.Errorf("postgres: load fee policy: %w", err)
	}
	return p, nil
}

// Save upserts the singleton policy row.
func (s *PolicyStore) Save(ctx context.Context, policy domain.FeePolicy) error {
	const query = `
		INSERT INTO fee_policy (
			id, version, platform_fee_bps, referrer, min_collateral,
			paused, updated_at, updated_by
		) VALUES (1, $1, $2, $3, $4, $5, NOW(), $6)
		ON CONFLICT (id) DO UPDATE SET
			version          = EXCLUDED.version,
			platform_fee_bps = EXCLUDED.platform_fee_bps,
			referrer         = EXCLUDED.referrer,
			min_collateral   = EXCLUDED.min_collateral,
			paused           = EXCLUDED.paused,
			updated_at       = NOW(),
			updated_by       = EXCLUDED.updated_by`

	_, err := s.pool.Exec(ctx, query,
		policy.Version, policy.PlatformFeeBps, policy.Referrer,
		policy.MinCollateral, policy.Paused, policy.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("postgres: save fee policy: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PolicyStore = (*PolicyStore)(nil)
