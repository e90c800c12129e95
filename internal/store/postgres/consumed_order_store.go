package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// ConsumedOrderStore implements domain.ConsumedOrderStore using PostgreSQL.
// The primary key on order_hash makes Mark first-writer-wins: a concurrent
// second mark observes the conflict and reports ErrAlreadyExists.
type ConsumedOrderStore struct {
	pool *pgxpool.Pool
}

// NewConsumedOrderStore creates a store backed by the given pool.
func NewConsumedOrderStore(pool *pgxpool.Pool) *ConsumedOrderStore {
	return &ConsumedOrderStore{pool: pool}
}

// Mark records the order hash as consumed. A hash can only ever be marked
// once; subsequent calls return domain.ErrAlreadyExists.
func (s *ConsumedOrderStore) Mark(ctx context.Context, orderHash, positionID string) error {
	const query = `
		INSERT INTO consumed_orders (order_hash, position_id)
		VALUES ($1, $2)
		ON CONFLICT (order_hash) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, orderHash, positionID)
	if err != nil {
		return fmt.Errorf("postgres: mark order consumed %s: %w", orderHash, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// IsConsumed reports whether the order hash is already in the set.
func (s *ConsumedOrderStore) IsConsumed(ctx context.Context, orderHash string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM consumed_orders WHERE order_hash = $1)`

	var consumed bool
	if err := s.pool.QueryRow(ctx, query, orderHash).Scan(&consumed); err != nil {
		return false, fmt.Errorf("postgres: check order consumed %s: %w", orderHash, err)
	}
	return consumed, nil
}

// Compile-time interface check.
var _ domain.ConsumedOrderStore = (*ConsumedOrderStore)(nil)
