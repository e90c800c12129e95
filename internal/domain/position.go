package domain

import "time"

// PositionStatus tracks the position lifecycle. The only allowed transition
// is active -> settled; settled is terminal.
type PositionStatus string

const (
	PositionStatusActive  PositionStatus = "active"
	PositionStatusSettled PositionStatus = "settled"
)

// Position records one completed settlement and its outcome. Positions are
// append-only: once created, only the status transition and realized PnL may
// change, and rows are never deleted.
type Position struct {
	ID          string // uuid
	Owner       string
	OrderHash   string // EIP-712 hash of the consumed order
	ExternalRef string // venue-side position reference
	Principal   int64  // collateral committed, micro-units
	Premium     int64  // net premium credited to the owner, micro-units
	PlatformFee int64  // fee retained by the platform, micro-units
	Direction   OptionDirection
	Side        OptionSide
	Status      PositionStatus
	RealizedPnL *int64 // nil until realized
	OpenedAt    time.Time
	SettledAt   *time.Time
}

// PositionAggregate is a fold over an owner's positions.
type PositionAggregate struct {
	Count          int64
	TotalPrincipal int64 // micro-units, all positions
	TotalPremium   int64 // micro-units, net premium earned
	ValueLocked    int64 // micro-units, principal of active positions only
}

// VaultTotals is the process-wide fold across all owners.
type VaultTotals struct {
	PositionsCreated int64
	ValueLocked      int64 // sum of principal over active positions
	PremiumEarned    int64 // sum of net premium over all positions
}
