// Package service contains the vault's business logic: order validation,
// collateral escrow, settlement, the position ledger, and administrative
// control. Services depend on the domain store and cache interfaces only;
// concrete postgres/redis/memory implementations are injected by the app
// wiring.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/optionsvault/internal/crypto"
	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// OrderValidator performs the pre-settlement checks on a signed option order.
// Validation is pure: it never mutates the consumed-order set (only the
// settlement engine marks orders, and only after a confirmed fill).
type OrderValidator struct {
	consumed domain.ConsumedOrderStore
	cache    domain.ConsumedCache // optional fast path, may be nil
	chainID  int
}

// NewOrderValidator creates a validator that checks signatures against the
// given EIP-712 chain ID and replay against the given consumed-order store.
func NewOrderValidator(consumed domain.ConsumedOrderStore, chainID int) *OrderValidator {
	return &OrderValidator{consumed: consumed, chainID: chainID}
}

// WithCache attaches a consumed-order cache consulted before the durable
// store.
func (v *OrderValidator) WithCache(cache domain.ConsumedCache) *OrderValidator {
	v.cache = cache
	return v
}

// Validate runs the checks in order, short-circuiting on the first failure:
// expiry, collateral ceiling, signature recovery, replay. On success it
// returns the order's stable hash, which the settlement engine later marks
// consumed.
func (v *OrderValidator) Validate(ctx context.Context, order domain.OptionOrder, signature string, requestedCollateral int64, now time.Time) (string, error) {
	if order.Expired(now) {
		return "", domain.ErrExpired
	}

	if requestedCollateral > order.MaxCollateral {
		return "", domain.ErrCollateralExceeded
	}

	digest := crypto.OrderDigest(order, v.chainID)
	signer, err := crypto.RecoverSigner(digest, signature)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(signer.Hex(), order.Maker) {
		return "", domain.ErrInvalidSignature
	}

	orderHash := crypto.OrderHashHex(order, v.chainID)

	if v.cache != nil {
		if hit, err := v.cache.Contains(ctx, orderHash); err == nil && hit {
			return "", domain.ErrAlreadyFilled
		}
		// Cache errors and misses fall through to the durable store.
	}

	consumed, err := v.consumed.IsConsumed(ctx, orderHash)
	if err != nil {
		return "", fmt.Errorf("order_validator: replay check: %w", err)
	}
	if consumed {
		return "", domain.ErrAlreadyFilled
	}

	return orderHash, nil
}
