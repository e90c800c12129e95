package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

func TestDepositWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 100*unit))
	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 50*unit))
	require.NoError(t, f.collateral.Withdraw(ctx, ownerAddr, 30*unit))

	account := f.balance(t, ownerAddr)
	assert.Equal(t, 120*unit, account.Available)
	assert.Equal(t, int64(0), account.Locked)
}

func TestWithdrawBeyondAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 100*unit))

	err := f.collateral.Withdraw(ctx, ownerAddr, 101*unit)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 100*unit, f.balance(t, ownerAddr).Available)
}

func TestLockedFundsCannotBeWithdrawn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 100*unit))
	lock, err := f.collateral.Lock(ctx, ownerAddr, 60*unit)
	require.NoError(t, err)

	err = f.collateral.Withdraw(ctx, ownerAddr, 50*unit)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, f.collateral.Release(ctx, lock))
	require.NoError(t, f.collateral.Withdraw(ctx, ownerAddr, 50*unit))
	assert.Equal(t, 50*unit, f.balance(t, ownerAddr).Available)
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.collateral.Deposit(ctx, ownerAddr, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.collateral.Deposit(ctx, ownerAddr, -unit), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.collateral.Withdraw(ctx, ownerAddr, 0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.collateral.Withdraw(ctx, ownerAddr, -unit), domain.ErrInvalidAmount)
}

func TestBalanceUnknownOwnerIsZero(t *testing.T) {
	f := newFixture(t)

	account := f.balance(t, "0x0000000000000000000000000000000000000CCC")
	assert.Equal(t, int64(0), account.Available)
	assert.Equal(t, int64(0), account.Locked)
	assert.False(t, account.Frozen)
}

func TestLockCommitSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 100*unit))
	lock, err := f.collateral.Lock(ctx, ownerAddr, 80*unit)
	require.NoError(t, err)

	account := f.balance(t, ownerAddr)
	assert.Equal(t, 20*unit, account.Available)
	assert.Equal(t, 80*unit, account.Locked)

	require.NoError(t, f.collateral.Commit(ctx, lock, 50*unit, 30*unit))

	account = f.balance(t, ownerAddr)
	assert.Equal(t, 50*unit, account.Available)
	assert.Equal(t, int64(0), account.Locked)
}

func TestCommitBadSplitFreezes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 100*unit))
	lock, err := f.collateral.Lock(ctx, ownerAddr, 80*unit)
	require.NoError(t, err)

	err = f.collateral.Commit(ctx, lock, 50*unit, 40*unit)
	assert.ErrorIs(t, err, domain.ErrInvariant)

	assert.True(t, f.balance(t, ownerAddr).Frozen)
	assert.ErrorIs(t, f.collateral.Deposit(ctx, ownerAddr, unit), domain.ErrInvariant)
	assert.ErrorIs(t, f.collateral.Withdraw(ctx, ownerAddr, unit), domain.ErrInvariant)
}

func TestPauseGatesCollateralOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 100*unit))
	require.NoError(t, f.admin.Pause(ctx, adminAddr))

	assert.ErrorIs(t, f.collateral.Deposit(ctx, ownerAddr, unit), domain.ErrPaused)
	assert.ErrorIs(t, f.collateral.Withdraw(ctx, ownerAddr, unit), domain.ErrPaused)
	_, err := f.collateral.Lock(ctx, ownerAddr, unit)
	assert.ErrorIs(t, err, domain.ErrPaused)

	// Reads stay available while paused.
	assert.Equal(t, 100*unit, f.balance(t, ownerAddr).Available)

	require.NoError(t, f.admin.Unpause(ctx, adminAddr))
	require.NoError(t, f.collateral.Withdraw(ctx, ownerAddr, unit))
}

func TestConcurrentDepositsAndWithdrawals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.collateral.Deposit(ctx, ownerAddr, 1000*unit))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = f.collateral.Deposit(ctx, ownerAddr, unit)
		}()
		go func() {
			defer wg.Done()
			_ = f.collateral.Withdraw(ctx, ownerAddr, unit)
		}()
	}
	wg.Wait()

	// Every deposit and withdrawal succeeds against the ample balance, so
	// they cancel out exactly.
	account := f.balance(t, ownerAddr)
	assert.Equal(t, 1000*unit, account.Available)
	assert.GreaterOrEqual(t, account.Available, int64(0))
}
