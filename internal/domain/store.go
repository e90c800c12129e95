package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists collateral accounts. Balance mutations are expressed
// as guarded deltas so implementations can enforce non-negativity atomically;
// a mutation that would drive a balance negative returns
// ErrInsufficientFunds without applying anything.
type AccountStore interface {
	Get(ctx context.Context, owner string) (CollateralAccount, error)
	// Upsert creates the account row if it does not exist.
	Upsert(ctx context.Context, account CollateralAccount) error
	// AddAvailable adjusts the available balance by delta (may be negative).
	AddAvailable(ctx context.Context, owner string, delta int64) error
	// MoveToLocked moves amount from available to locked.
	MoveToLocked(ctx context.Context, owner string, amount int64) error
	// ResolveLock removes amount from locked and credits refund back to
	// available. spent = amount - refund leaves the vault permanently.
	ResolveLock(ctx context.Context, owner string, amount, refund int64) error
	// SetFrozen flips the frozen flag.
	SetFrozen(ctx context.Context, owner string, frozen bool) error
	List(ctx context.Context, opts ListOpts) ([]CollateralAccount, error)
}

// PositionStore persists the append-only position ledger.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// UpdateStatus applies the active -> settled transition, optionally
	// recording realized PnL. Settling an already-settled position is a
	// no-op; any other transition returns ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, status PositionStatus, pnl *int64) error
	// ListByOwner returns positions in creation order.
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Position, error)
	Aggregate(ctx context.Context, owner string) (PositionAggregate, error)
	Totals(ctx context.Context) (VaultTotals, error)
}

// ConsumedOrderStore is the durable replay guard. An order hash can be marked
// at most once; a second mark returns ErrAlreadyExists. The set survives
// process restarts so a replayed order can never settle twice.
type ConsumedOrderStore interface {
	Mark(ctx context.Context, orderHash, positionID string) error
	IsConsumed(ctx context.Context, orderHash string) (bool, error)
}

// PolicyStore persists the fee policy. Callers bump the version before Save.
type PolicyStore interface {
	Load(ctx context.Context) (FeePolicy, error)
	Save(ctx context.Context, policy FeePolicy) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
