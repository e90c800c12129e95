package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

func TestSetFeeCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.admin.SetFee(ctx, adminAddr, domain.MaxFeeBps+1)
	assert.ErrorIs(t, err, domain.ErrFeeTooHigh)

	// The previous fee stays in force.
	policy, err := f.admin.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), policy.PlatformFeeBps)

	require.NoError(t, f.admin.SetFee(ctx, adminAddr, domain.MaxFeeBps))
	policy, err = f.admin.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(domain.MaxFeeBps), policy.PlatformFeeBps)

	assert.ErrorIs(t, f.admin.SetFee(ctx, adminAddr, -1), domain.ErrFeeTooHigh)
}

func TestAdminAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := "0x0000000000000000000000000000000000000bad"

	assert.ErrorIs(t, f.admin.SetFee(ctx, stranger, 100), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.admin.Pause(ctx, stranger), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.admin.Unpause(ctx, stranger), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.admin.SetReferrer(ctx, stranger, "0x1"), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.admin.SetMinCollateral(ctx, stranger, unit), domain.ErrUnauthorized)

	// Address comparison is case-insensitive.
	require.NoError(t, f.admin.SetFee(ctx, "0x00000000000000000000000000000000000000ad", 100))
}

func TestPolicyVersioning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	policy, err := f.admin.Policy(ctx)
	require.NoError(t, err)
	v := policy.Version

	require.NoError(t, f.admin.SetFee(ctx, adminAddr, 250))
	require.NoError(t, f.admin.SetMinCollateral(ctx, adminAddr, 10*unit))

	policy, err = f.admin.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, v+2, policy.Version)
	assert.Equal(t, int64(250), policy.PlatformFeeBps)
	assert.Equal(t, 10*unit, policy.MinCollateral)
	assert.Equal(t, adminAddr, policy.UpdatedBy)
}

func TestSetMinCollateralRejectsNegative(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.admin.SetMinCollateral(context.Background(), adminAddr, -1), domain.ErrInvalidAmount)
}

func TestSplitPremiumRounding(t *testing.T) {
	policy := domain.FeePolicy{PlatformFeeBps: 500}

	// Fee truncates toward zero; the owner keeps the remainder.
	net, fee, ref := policy.SplitPremium(1001)
	assert.Equal(t, int64(50), fee)
	assert.Equal(t, int64(951), net)
	assert.Equal(t, int64(0), ref)
	assert.Equal(t, int64(1001), net+fee+ref)

	policy.Referrer = "0xref"
	net, fee, ref = policy.SplitPremium(1001)
	assert.Equal(t, int64(25), fee)
	assert.Equal(t, int64(25), ref)
	assert.Equal(t, int64(951), net)
	assert.Equal(t, int64(1001), net+fee+ref)

	// Zero fee pays everything to the owner.
	net, fee, ref = domain.FeePolicy{}.SplitPremium(777)
	assert.Equal(t, int64(777), net)
	assert.Equal(t, int64(0), fee+ref)
}
