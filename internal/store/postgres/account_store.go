package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL. Balance
// mutations are guarded UPDATEs: the WHERE clause enforces non-negativity so
// two concurrent writers can never drive a balance below zero.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Get returns the account for owner, or domain.ErrNotFound.
func (s *AccountStore) Get(ctx context.Context, owner string) (domain.CollateralAccount, error) {
	const query = `
		SELECT owner, available, locked, frozen, updated_at
		FROM accounts WHERE owner = $1`

	var a domain.CollateralAccount
	err := s.pool.QueryRow(ctx, query, owner).Scan(
		&a.Owner, &a.Available, &a.Locked, &a.Frozen, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CollateralAccount{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CollateralAccount{}, fmt.Errorf("postgres: get account %s: %w", owner, err)
	}
	return a, nil
}

// Upsert creates or replaces the account row.
func (s *AccountStore) Upsert(ctx context.Context, account domain.CollateralAccount) error {
	const query = `
		INSERT INTO accounts (owner, available, locked, frozen, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner) DO UPDATE SET
			available  = EXCLUDED.available,
			locked     = EXCLUDED.locked,
			frozen     = EXCLUDED.frozen,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		account.Owner, account.Available, account.Locked, account.Frozen,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert account %s: %w", account.Owner, err)
	}
	return nil
}

// AddAvailable adjusts the available balance by delta. Positive deltas create
// the account row if needed; negative deltas fail with ErrInsufficientFunds
// when the balance cannot cover them.
func (s *AccountStore) AddAvailable(ctx context.Context, owner string, delta int64) error {
	if delta >= 0 {
		const credit = `
			INSERT INTO accounts (owner, available) VALUES ($1, $2)
			ON CONFLICT (owner) DO UPDATE SET
				available  = accounts.available + EXCLUDED.available,
				updated_at = NOW()`
		if _, err := s.pool.Exec(ctx, credit, owner, delta); err != nil {
			return fmt.Errorf("postgres: credit account %s: %w", owner, err)
		}
		return nil
	}

	const debit = `
		UPDATE accounts SET available = available + $2, updated_at = NOW()
		WHERE owner = $1 AND available + $2 >= 0`
	tag, err := s.pool.Exec(ctx, debit, owner, delta)
	if err != nil {
		return fmt.Errorf("postgres: debit account %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// MoveToLocked moves amount from available to locked atomically.
func (s *AccountStore) MoveToLocked(ctx context.Context, owner string, amount int64) error {
	const query = `
		UPDATE accounts SET
			available  = available - $2,
			locked     = locked + $2,
			updated_at = NOW()
		WHERE owner = $1 AND available >= $2`

	tag, err := s.pool.Exec(ctx, query, owner, amount)
	if err != nil {
		return fmt.Errorf("postgres: lock collateral %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// ResolveLock removes amount from locked and returns refund to available.
// A locked balance too small to cover the resolution indicates a logic
// defect, reported as ErrInvariant.
func (s *AccountStore) ResolveLock(ctx context.Context, owner string, amount, refund int64) error {
	const query = `
		UPDATE accounts SET
			locked     = locked - $2,
			available  = available + $3,
			updated_at = NOW()
		WHERE owner = $1 AND locked >= $2`

	tag, err := s.pool.Exec(ctx, query, owner, amount, refund)
	if err != nil {
		return fmt.Errorf("postgres: resolve lock %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvariant
	}
	return nil
}

// SetFrozen flips the frozen flag on the account.
func (s *AccountStore) SetFrozen(ctx context.Context, owner string, frozen bool) error {
	const query = `UPDATE accounts SET frozen = $2, updated_at = NOW() WHERE owner = $1`
	tag, err := s.pool.Exec(ctx, query, owner, frozen)
	if err != nil {
		return fmt.Errorf("postgres: set frozen %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns accounts ordered by owner.
func (s *AccountStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.CollateralAccount, error) {
	query := `SELECT owner, available, locked, frozen, updated_at FROM accounts ORDER BY owner`
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET $2`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.CollateralAccount
	for rows.Next() {
		var a domain.CollateralAccount
		if err := rows.Scan(&a.Owner, &a.Available, &a.Locked, &a.Frozen, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
