package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. The table
// is append-only; the only UPDATE it ever issues is the active -> settled
// status transition.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, owner, order_hash, external_ref, principal,
	premium, platform_fee, direction, side, status, realized_pnl,
	opened_at, settled_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, side, status string

	err := row.Scan(
		&p.ID, &p.Owner, &p.OrderHash, &p.ExternalRef, &p.Principal,
		&p.Premium, &p.PlatformFee, &direction, &side, &status,
		&p.RealizedPnL, &p.OpenedAt, &p.SettledAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Direction = domain.OptionDirection(direction)
	p.Side = domain.OptionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// Create inserts a new position row.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, owner, order_hash, external_ref, principal,
			premium, platform_fee, direction, side, status,
			realized_pnl, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Owner, p.OrderHash, p.ExternalRef, p.Principal,
		p.Premium, p.PlatformFee, string(p.Direction), string(p.Side),
		string(p.Status), p.RealizedPnL, p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a single position, or domain.ErrNotFound.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// UpdateStatus applies the active -> settled transition. Re-settling an
// already-settled position is a no-op; any other transition is rejected.
func (s *PositionStore) UpdateStatus(ctx context.Context, id string, status domain.PositionStatus, pnl *int64) error {
	if status != domain.PositionStatusSettled {
		return domain.ErrInvalidTransition
	}

	const query = `
		UPDATE positions SET
			status       = $2,
			realized_pnl = COALESCE($3, realized_pnl),
			settled_at   = NOW()
		WHERE id = $1 AND status = $4`

	tag, err := s.pool.Exec(ctx, query, id,
		string(domain.PositionStatusSettled), pnl, string(domain.PositionStatusActive),
	)
	if err != nil {
		return fmt.Errorf("postgres: settle position %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No transition happened: either the row is missing or it was already
	// settled (idempotent no-op).
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == domain.PositionStatusSettled {
		return nil
	}
	return domain.ErrInvalidTransition
}

// ListByOwner returns an owner's positions in creation order.
func (s *PositionStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE owner = $1 ORDER BY seq`
	args := []any{owner}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions %s: %w", owner, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Aggregate folds an owner's positions into summary counters.
func (s *PositionStore) Aggregate(ctx context.Context, owner string) (domain.PositionAggregate, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(principal), 0),
			COALESCE(SUM(premium), 0),
			COALESCE(SUM(principal) FILTER (WHERE status = 'active'), 0)
		FROM positions WHERE owner = $1`

	var agg domain.PositionAggregate
	err := s.pool.QueryRow(ctx, query, owner).Scan(
		&agg.Count, &agg.TotalPrincipal, &agg.TotalPremium, &agg.ValueLocked,
	)
	if err != nil {
		return domain.PositionAggregate{}, fmt.Errorf("postgres: aggregate positions %s: %w", owner, err)
	}
	return agg, nil
}

// Totals folds the whole ledger into vault-wide counters.
func (s *PositionStore) Totals(ctx context.Context) (domain.VaultTotals, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(principal) FILTER (WHERE status = 'active'), 0),
			COALESCE(SUM(premium), 0)
		FROM positions`

	var t domain.VaultTotals
	err := s.pool.QueryRow(ctx, query).Scan(
		&t.PositionsCreated, &t.ValueLocked, &t.PremiumEarned,
	)
	if err != nil {
		return domain.VaultTotals{}, fmt.Errorf("postgres: vault totals: %w", err)
	}
	return t, nil
}

// ListSettledBefore returns positions settled strictly before the cutoff.
// The archiver uses it to export cold ledger data.
func (s *PositionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions
		WHERE status = 'settled' AND settled_at < $1
		ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
