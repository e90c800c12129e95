package domain

import "errors"

// Order validation failures. These never mutate state and are never retried
// automatically.
var (
	ErrExpired            = errors.New("order expired")
	ErrCollateralExceeded = errors.New("collateral exceeds order ceiling")
	ErrCollateralTooSmall = errors.New("collateral below configured minimum")
	ErrInvalidSignature   = errors.New("signature does not recover to maker")
	ErrAlreadyFilled      = errors.New("order already consumed")
)

// Resource failures.
var (
	ErrInsufficientFunds = errors.New("insufficient available collateral")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrPaused            = errors.New("vault is paused")
)

// Market adapter failures. A rejected order had its collateral released and
// may be retried with a fresh order; an unavailable market is transient and
// the same order may be retried while it remains valid.
var (
	ErrMarketRejected    = errors.New("market rejected fill")
	ErrMarketUnavailable = errors.New("market unavailable")
)

// Administrative failures.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrFeeTooHigh   = errors.New("fee exceeds maximum basis points")
)

// Ledger failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid position status transition")
)

// ErrInvariant signals a broken internal invariant (negative balance, double
// consumption of an order hash). It is never corrected silently: the owning
// account is frozen and every further operation on it fails with this error
// until an operator intervenes.
var ErrInvariant = errors.New("ledger invariant violated")

// Infrastructure errors shared across adapters.
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrLockHeld     = errors.New("lock already held")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
