package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

const (
	// ownerLockTTL bounds how long a per-owner critical section may be held
	// before a crashed holder's distributed lock expires.
	ownerLockTTL = 10 * time.Second

	// lockRetryInterval is the polling interval while waiting for another
	// settlement on the same owner to finish.
	lockRetryInterval = 20 * time.Millisecond
)

// PolicyReader exposes the current fee policy to services that must re-check
// the pause gate and fee parameters at invocation time.
type PolicyReader interface {
	Policy(ctx context.Context) (domain.FeePolicy, error)
}

// CollateralService manages per-owner collateral balances: deposits,
// withdrawals, and the lock/commit/release cycle used by settlements.
// Balance moves for one owner are serialized through the lock manager;
// unrelated owners proceed in parallel.
type CollateralService struct {
	accounts domain.AccountStore
	locks    domain.LockManager
	policy   PolicyReader
	bus      domain.EventBus // optional
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewCollateralService creates a CollateralService.
func NewCollateralService(
	accounts domain.AccountStore,
	locks domain.LockManager,
	policy PolicyReader,
	audit domain.AuditStore,
	logger *slog.Logger,
) *CollateralService {
	return &CollateralService{
		accounts: accounts,
		locks:    locks,
		policy:   policy,
		audit:    audit,
		logger:   logger.With(slog.String("component", "collateral")),
	}
}

// WithEventBus attaches an event bus for balance change notifications.
func (s *CollateralService) WithEventBus(bus domain.EventBus) *CollateralService {
	s.bus = bus
	return s
}

// Deposit credits amount to the owner's available balance.
func (s *CollateralService) Deposit(ctx context.Context, owner string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("collateral: deposit amount %d: %w", amount, domain.ErrInvalidAmount)
	}
	if err := s.gate(ctx, owner); err != nil {
		return err
	}

	unlock, err := s.acquireOwner(ctx, owner)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.accounts.AddAvailable(ctx, owner, amount); err != nil {
		return fmt.Errorf("collateral: deposit %s: %w", owner, err)
	}

	s.publishBalance(ctx, owner, amount, "deposit")
	return nil
}

// Withdraw debits amount from the owner's available balance. Locked funds
// cannot be withdrawn.
func (s *CollateralService) Withdraw(ctx context.Context, owner string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("collateral: withdraw amount %d: %w", amount, domain.ErrInvalidAmount)
	}
	if err := s.gate(ctx, owner); err != nil {
		return err
	}

	unlock, err := s.acquireOwner(ctx, owner)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.accounts.AddAvailable(ctx, owner, -amount); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.ErrInsufficientFunds
		}
		return fmt.Errorf("collateral: withdraw %s: %w", owner, err)
	}

	s.publishBalance(ctx, owner, -amount, "withdraw")
	return nil
}

// Balance returns the owner's account. An owner with no history has zero
// balances.
func (s *CollateralService) Balance(ctx context.Context, owner string) (domain.CollateralAccount, error) {
	account, err := s.accounts.Get(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CollateralAccount{Owner: owner}, nil
	}
	if err != nil {
		return domain.CollateralAccount{}, fmt.Errorf("collateral: balance %s: %w", owner, err)
	}
	return account, nil
}

// Lock reserves amount of the owner's available collateral for an in-flight
// settlement. The returned lock must be resolved exactly once, by Commit or
// Release.
func (s *CollateralService) Lock(ctx context.Context, owner string, amount int64) (*domain.CollateralLock, error) {
	if err := s.gate(ctx, owner); err != nil {
		return nil, err
	}

	unlock, err := s.acquireOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.accounts.MoveToLocked(ctx, owner, amount); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, domain.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("collateral: lock %s: %w", owner, err)
	}

	return &domain.CollateralLock{
		ID:       uuid.New().String(),
		Owner:    owner,
		Amount:   amount,
		LockedAt: time.Now().UTC(),
	}, nil
}

// Commit resolves a lock after a successful settlement: spent leaves the
// vault permanently, refund returns to available. spent+refund must equal
// the locked amount; anything else is a logic defect and freezes the owner.
func (s *CollateralService) Commit(ctx context.Context, lock *domain.CollateralLock, spent, refund int64) error {
	if spent < 0 || refund < 0 || spent+refund != lock.Amount {
		return s.invariant(ctx, lock.Owner,
			fmt.Sprintf("commit split %d+%d does not match locked %d", spent, refund, lock.Amount))
	}

	unlock, err := s.acquireOwner(ctx, lock.Owner)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.accounts.ResolveLock(ctx, lock.Owner, lock.Amount, refund); err != nil {
		if errors.Is(err, domain.ErrInvariant) {
			return s.invariant(ctx, lock.Owner, "locked balance below committed amount")
		}
		return fmt.Errorf("collateral: commit %s: %w", lock.ID, err)
	}
	return nil
}

// Release resolves a lock after a failed settlement, returning the full
// amount to available.
func (s *CollateralService) Release(ctx context.Context, lock *domain.CollateralLock) error {
	unlock, err := s.acquireOwner(ctx, lock.Owner)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.accounts.ResolveLock(ctx, lock.Owner, lock.Amount, lock.Amount); err != nil {
		if errors.Is(err, domain.ErrInvariant) {
			return s.invariant(ctx, lock.Owner, "locked balance below released amount")
		}
		return fmt.Errorf("collateral: release %s: %w", lock.ID, err)
	}
	return nil
}

// Credit adds amount to an account's available balance without the pause
// gate. Settlement uses it to pay out premiums and fees for an operation
// that already passed the gate.
func (s *CollateralService) Credit(ctx context.Context, owner string, amount int64) error {
	if amount == 0 {
		return nil
	}
	if err := s.accounts.AddAvailable(ctx, owner, amount); err != nil {
		return fmt.Errorf("collateral: credit %s: %w", owner, err)
	}
	return nil
}

// Freeze marks the owner's account frozen after an invariant violation.
// Every subsequent operation on the account fails until an operator clears
// the flag.
func (s *CollateralService) Freeze(ctx context.Context, owner, reason string) {
	if err := s.accounts.SetFrozen(ctx, owner, true); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to freeze account",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
	}
	_ = s.audit.Log(ctx, "account_frozen", map[string]any{
		"owner":  owner,
		"reason": reason,
	})
	s.logger.ErrorContext(ctx, "account frozen",
		slog.String("owner", owner),
		slog.String("reason", reason),
	)
}

// gate enforces the pause switch and the frozen flag before any mutation.
func (s *CollateralService) gate(ctx context.Context, owner string) error {
	policy, err := s.policy.Policy(ctx)
	if err != nil {
		return fmt.Errorf("collateral: load policy: %w", err)
	}
	if policy.Paused {
		return domain.ErrPaused
	}

	account, err := s.accounts.Get(ctx, owner)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("collateral: load account %s: %w", owner, err)
	}
	if account.Frozen {
		return domain.ErrInvariant
	}
	return nil
}

// acquireOwner takes the owner's exclusive critical section, polling while
// another holder finishes. It returns the unlock function.
func (s *CollateralService) acquireOwner(ctx context.Context, owner string) (func(), error) {
	key := "acct:" + owner
	for {
		unlock, err := s.locks.Acquire(ctx, key, ownerLockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("collateral: acquire owner lock %s: %w", owner, err)
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("collateral: acquire owner lock %s: %w", owner, ctx.Err())
		case <-timer.C:
		}
	}
}

// invariant freezes the owner and reports the violation.
func (s *CollateralService) invariant(ctx context.Context, owner, detail string) error {
	s.Freeze(ctx, owner, detail)
	return fmt.Errorf("collateral: %s: %w", detail, domain.ErrInvariant)
}

// publishBalance emits a balance event when a bus is attached.
func (s *CollateralService) publishBalance(ctx context.Context, owner string, change int64, kind string) {
	if s.bus == nil {
		return
	}

	account, err := s.accounts.Get(ctx, owner)
	if err != nil {
		return
	}

	payload, err := json.Marshal(domain.BalanceEvent{
		Owner:     owner,
		Available: account.Available,
		Locked:    account.Locked,
		Change:    change,
		Kind:      kind,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelBalances, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to publish balance event",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
	}
}
