package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/alanyoungcy/optionsvault/internal/cache/memory"
	"github.com/alanyoungcy/optionsvault/internal/crypto"
	"github.com/alanyoungcy/optionsvault/internal/domain"
	memstore "github.com/alanyoungcy/optionsvault/internal/store/memory"
)

const (
	// unit is one settlement-asset unit in micro-units.
	unit = int64(1_000_000)

	testChainID     = 137
	testMakerKey    = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"
	testStrangerKey = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"

	adminAddr    = "0x00000000000000000000000000000000000000AD"
	platformAddr = "0x0000000000000000000000000000000000000FEE"
	ownerAddr    = "0x0000000000000000000000000000000000000AAA"
)

// fakeMarket is a controllable MarketAdapter for the settlement tests.
type fakeMarket struct {
	mu    sync.Mutex
	calls int

	// fill, when set, computes the result per call. block makes the adapter
	// hang until the submission context is cancelled.
	fill  func(collateral int64) (domain.FillResult, error)
	block bool
}

func (m *fakeMarket) SubmitFill(ctx context.Context, _ domain.OptionOrder, _ string, collateral int64, _ string) (domain.FillResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return domain.FillResult{}, ctx.Err()
	}
	if m.fill != nil {
		return m.fill(collateral)
	}
	return domain.FillResult{
		Premium:        10 * unit,
		CollateralUsed: collateral,
		ExternalRef:    "venue-pos-1",
	}, nil
}

func (m *fakeMarket) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	accounts   *memstore.AccountStore
	positions  *memstore.PositionStore
	consumed   *memstore.ConsumedOrderStore
	audit      *memstore.AuditStore
	market     *fakeMarket
	signer     *crypto.Signer
	admin      *AdminService
	collateral *CollateralService
	posSvc     *PositionService
	settlement *SettlementService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	accounts := memstore.NewAccountStore()
	positions := memstore.NewPositionStore()
	consumed := memstore.NewConsumedOrderStore()
	policyStore := memstore.NewPolicyStore()
	audit := memstore.NewAuditStore()
	locks := memcache.NewLockManager()

	admin := NewAdminService(adminAddr, policyStore, audit, logger)
	require.NoError(t, admin.Load(context.Background(), domain.FeePolicy{PlatformFeeBps: 500}))

	collateral := NewCollateralService(accounts, locks, admin, audit, logger)
	posSvc := NewPositionService(positions, audit, logger)
	validator := NewOrderValidator(consumed, testChainID)
	market := &fakeMarket{}

	settlement := NewSettlementService(
		validator, collateral, posSvc, admin, market, consumed, audit, platformAddr, logger,
	).WithMarketTimeout(200 * time.Millisecond)

	signer, err := crypto.NewSigner(testMakerKey, testChainID)
	require.NoError(t, err)

	return &fixture{
		accounts:   accounts,
		positions:  positions,
		consumed:   consumed,
		audit:      audit,
		market:     market,
		signer:     signer,
		admin:      admin,
		collateral: collateral,
		posSvc:     posSvc,
		settlement: settlement,
	}
}

// signedOrder builds a valid order signed by the fixture's maker key. salt
// disambiguates otherwise-identical orders via the strike ladder.
func (f *fixture) signedOrder(t *testing.T, salt int64) (domain.OptionOrder, string) {
	t.Helper()

	order := domain.OptionOrder{
		Maker:           f.signer.Address().Hex(),
		CollateralToken: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		Strikes:         []int64{2000 * unit, (2100 + salt) * unit},
		Expiry:          time.Now().Add(24 * time.Hour).Unix(),
		OrderExpiry:     time.Now().Add(time.Hour).Unix(),
		Price:           10 * unit,
		MaxCollateral:   500 * unit,
		Direction:       domain.DirectionShort,
		Side:            domain.OptionSideCall,
	}
	sig, err := f.signer.SignOrder(order)
	require.NoError(t, err)
	return order, sig
}

func (f *fixture) deposit(t *testing.T, owner string, amount int64) {
	t.Helper()
	require.NoError(t, f.collateral.Deposit(context.Background(), owner, amount))
}

func (f *fixture) balance(t *testing.T, owner string) domain.CollateralAccount {
	t.Helper()
	account, err := f.collateral.Balance(context.Background(), owner)
	require.NoError(t, err)
	return account
}

func TestSettleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 1000*unit)
	order, sig := f.signedOrder(t, 0)

	result, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner:      ownerAddr,
		Order:      order,
		Signature:  sig,
		Collateral: 100 * unit,
	})
	require.NoError(t, err)

	// 5% of the 10-unit premium goes to the platform.
	assert.Equal(t, int64(9_500_000), result.NetPremium)
	assert.Equal(t, int64(500_000), result.PlatformFee)
	assert.Equal(t, int64(0), result.ReferrerShare)
	assert.Equal(t, 100*unit, result.CollateralUsed)
	assert.Equal(t, int64(0), result.Refunded)

	owner := f.balance(t, ownerAddr)
	assert.Equal(t, 900*unit+9_500_000, owner.Available)
	assert.Equal(t, int64(0), owner.Locked)

	platform := f.balance(t, platformAddr)
	assert.Equal(t, int64(500_000), platform.Available)

	positions, err := f.posSvc.Positions(ctx, ownerAddr, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, result.PositionID, pos.ID)
	assert.Equal(t, result.OrderHash, pos.OrderHash)
	assert.Equal(t, 100*unit, pos.Principal)
	assert.Equal(t, int64(9_500_000), pos.Premium)
	assert.Equal(t, int64(500_000), pos.PlatformFee)
	assert.Equal(t, domain.PositionStatusActive, pos.Status)
	assert.Equal(t, "venue-pos-1", pos.ExternalRef)

	totals, err := f.posSvc.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.PositionsCreated)
	assert.Equal(t, 100*unit, totals.ValueLocked)
	assert.Equal(t, int64(9_500_000), totals.PremiumEarned)
}

func TestSettleReplayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 1000*unit)
	order, sig := f.signedOrder(t, 0)
	req := SettlementRequest{Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit}

	_, err := f.settlement.Settle(ctx, req)
	require.NoError(t, err)

	before := f.balance(t, ownerAddr)

	_, err = f.settlement.Settle(ctx, req)
	assert.ErrorIs(t, err, domain.ErrAlreadyFilled)

	after := f.balance(t, ownerAddr)
	assert.Equal(t, before.Available, after.Available)
	assert.Equal(t, int64(0), after.Locked)
	assert.Equal(t, 1, f.market.callCount())
}

func TestSettleMarketRejectedReleasesCollateral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 200*unit)
	f.market.fill = func(int64) (domain.FillResult, error) {
		return domain.FillResult{}, domain.ErrMarketRejected
	}

	order, sig := f.signedOrder(t, 0)
	_, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
	})
	assert.ErrorIs(t, err, domain.ErrMarketRejected)

	account := f.balance(t, ownerAddr)
	assert.Equal(t, 200*unit, account.Available)
	assert.Equal(t, int64(0), account.Locked)

	// Rejection does not consume the order; a retry reaches the market again.
	f.market.fill = nil
	_, err = f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
	})
	require.NoError(t, err)
}

func TestSettleMarketTimeoutReleasesCollateral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 200*unit)
	f.market.block = true
	f.settlement.WithMarketTimeout(30 * time.Millisecond)

	order, sig := f.signedOrder(t, 0)
	_, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
	})
	assert.ErrorIs(t, err, domain.ErrMarketUnavailable)

	account := f.balance(t, ownerAddr)
	assert.Equal(t, 200*unit, account.Available)
	assert.Equal(t, int64(0), account.Locked)
}

func TestSettlePartialFillRefundsRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 1000*unit)
	f.market.fill = func(collateral int64) (domain.FillResult, error) {
		return domain.FillResult{
			Premium:        4 * unit,
			CollateralUsed: collateral / 2,
			ExternalRef:    "venue-pos-partial",
		}, nil
	}

	order, sig := f.signedOrder(t, 0)
	result, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
	})
	require.NoError(t, err)

	assert.Equal(t, 50*unit, result.CollateralUsed)
	assert.Equal(t, 50*unit, result.Refunded)

	account := f.balance(t, ownerAddr)
	netPremium := 4*unit - 4*unit*500/10000
	assert.Equal(t, 950*unit+netPremium, account.Available)
	assert.Equal(t, int64(0), account.Locked)
}

func TestSettleReferrerShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	referrer := "0x0000000000000000000000000000000000000REF"
	require.NoError(t, f.admin.SetReferrer(ctx, adminAddr, referrer))

	f.deposit(t, ownerAddr, 1000*unit)
	order, sig := f.signedOrder(t, 0)
	result, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
	})
	require.NoError(t, err)

	// Platform fee 0.5 units splits evenly with the referrer.
	assert.Equal(t, int64(9_500_000), result.NetPremium)
	assert.Equal(t, int64(250_000), result.PlatformFee)
	assert.Equal(t, int64(250_000), result.ReferrerShare)

	assert.Equal(t, int64(250_000), f.balance(t, platformAddr).Available)
	assert.Equal(t, int64(250_000), f.balance(t, referrer).Available)
}

func TestSettlePausedVault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 1000*unit)
	require.NoError(t, f.admin.Pause(ctx, adminAddr))

	order, sig := f.signedOrder(t, 0)
	req := SettlementRequest{Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit}

	_, err := f.settlement.Settle(ctx, req)
	assert.ErrorIs(t, err, domain.ErrPaused)
	assert.Equal(t, 0, f.market.callCount())

	require.NoError(t, f.admin.Unpause(ctx, adminAddr))
	_, err = f.settlement.Settle(ctx, req)
	require.NoError(t, err)
}

func TestSettleMinCollateral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.admin.SetMinCollateral(ctx, adminAddr, 50*unit))
	f.deposit(t, ownerAddr, 1000*unit)

	order, sig := f.signedOrder(t, 0)
	_, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 49 * unit,
	})
	assert.ErrorIs(t, err, domain.ErrCollateralTooSmall)

	_, err = f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 50 * unit,
	})
	require.NoError(t, err)
}

func TestSettleValidationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, ownerAddr, 1000*unit)

	t.Run("expired order", func(t *testing.T) {
		order, _ := f.signedOrder(t, 1)
		order.OrderExpiry = time.Now().Add(-time.Minute).Unix()
		sig, err := f.signer.SignOrder(order)
		require.NoError(t, err)

		_, err = f.settlement.Settle(ctx, SettlementRequest{
			Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
		})
		assert.ErrorIs(t, err, domain.ErrExpired)
	})

	t.Run("collateral over ceiling", func(t *testing.T) {
		order, sig := f.signedOrder(t, 2)
		_, err := f.settlement.Settle(ctx, SettlementRequest{
			Owner: ownerAddr, Order: order, Signature: sig, Collateral: order.MaxCollateral + 1,
		})
		assert.ErrorIs(t, err, domain.ErrCollateralExceeded)
	})

	t.Run("signature from wrong key", func(t *testing.T) {
		order, _ := f.signedOrder(t, 3)
		stranger, err := crypto.NewSigner(testStrangerKey, testChainID)
		require.NoError(t, err)
		badSig, err := stranger.SignOrder(order)
		require.NoError(t, err)

		_, err = f.settlement.Settle(ctx, SettlementRequest{
			Owner: ownerAddr, Order: order, Signature: badSig, Collateral: 100 * unit,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		broke := "0x0000000000000000000000000000000000000BBB"
		order, sig := f.signedOrder(t, 4)
		_, err := f.settlement.Settle(ctx, SettlementRequest{
			Owner: broke, Order: order, Signature: sig, Collateral: 100 * unit,
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	// No validation failure reached the market.
	assert.Equal(t, 0, f.market.callCount())
}

func TestConcurrentSettlesCannotOversubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.admin.SetFee(ctx, adminAddr, 0))
	f.deposit(t, ownerAddr, 100*unit)
	f.market.fill = func(collateral int64) (domain.FillResult, error) {
		return domain.FillResult{Premium: 0, CollateralUsed: collateral, ExternalRef: "venue-conc"}, nil
	}

	const attempts = 10
	const perSettle = 30 * unit

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		order, sig := f.signedOrder(t, int64(i))
		wg.Add(1)
		go func(i int, order domain.OptionOrder, sig string) {
			defer wg.Done()
			_, errs[i] = f.settlement.Settle(ctx, SettlementRequest{
				Owner: ownerAddr, Order: order, Signature: sig, Collateral: perSettle,
			})
		}(i, order, sig)
	}
	wg.Wait()

	var succeeded int64
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}
	}
	// 100 units funds at most three 30-unit settlements.
	assert.LessOrEqual(t, succeeded, int64(3))
	assert.Greater(t, succeeded, int64(0))

	account := f.balance(t, ownerAddr)
	assert.Equal(t, 100*unit-succeeded*perSettle, account.Available)
	assert.Equal(t, int64(0), account.Locked)

	totals, err := f.posSvc.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, succeeded, totals.PositionsCreated)
	assert.Equal(t, succeeded*perSettle, totals.ValueLocked)
}

func TestSettleOversizedFillFreezesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 1000*unit)
	f.market.fill = func(collateral int64) (domain.FillResult, error) {
		return domain.FillResult{Premium: unit, CollateralUsed: collateral + 1}, nil
	}

	order, sig := f.signedOrder(t, 0)
	_, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
	})
	assert.ErrorIs(t, err, domain.ErrInvariant)

	// The account is frozen: even deposits fail until an operator intervenes.
	err = f.collateral.Deposit(ctx, ownerAddr, unit)
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestPositionSettleTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, ownerAddr, 1000*unit)
	order, sig := f.signedOrder(t, 0)
	result, err := f.settlement.Settle(ctx, SettlementRequest{
		Owner: ownerAddr, Order: order, Signature: sig, Collateral: 100 * unit,
	})
	require.NoError(t, err)

	pnl := int64(3 * unit)
	require.NoError(t, f.posSvc.Settle(ctx, result.PositionID, &pnl))

	pos, err := f.posSvc.Get(ctx, result.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusSettled, pos.Status)
	require.NotNil(t, pos.RealizedPnL)
	assert.Equal(t, pnl, *pos.RealizedPnL)
	require.NotNil(t, pos.SettledAt)

	// Settling again is a no-op, not an error.
	require.NoError(t, f.posSvc.Settle(ctx, result.PositionID, nil))

	// Settled principal no longer counts toward value locked.
	totals, err := f.posSvc.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.ValueLocked)
	assert.Equal(t, int64(1), totals.PositionsCreated)
}
