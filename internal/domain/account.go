package domain

import "time"

// CollateralAccount is the per-owner balance of the settlement asset.
// Funds move available -> locked -> (spent | back to available); neither
// side may ever go negative.
type CollateralAccount struct {
	Owner     string // address-like opaque key
	Available int64  // micro-units
	Locked    int64  // micro-units committed to in-flight settlements
	Frozen    bool   // set after an invariant violation; blocks all ops
	UpdatedAt time.Time
}

// Total returns the full balance held for the owner.
func (a CollateralAccount) Total() int64 {
	return a.Available + a.Locked
}

// CollateralLock is a reservation of collateral taken before a settlement is
// submitted to the market. It is resolved exactly once, by Commit or Release.
type CollateralLock struct {
	ID       string // correlation id, identifies at most one ledger update
	Owner    string
	Amount   int64
	LockedAt time.Time
}
