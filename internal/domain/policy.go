package domain

import "time"

// MaxFeeBps caps the platform fee at 25%. SetFee rejects anything above it.
const MaxFeeBps = 2500

// FeeBpsDenominator converts basis points to a fraction.
const FeeBpsDenominator = 10000

// FeePolicy is the single process-wide fee and safety configuration. It is
// mutable only through the admin service and versioned on every change.
type FeePolicy struct {
	Version        int64
	PlatformFeeBps int64  // 0 <= PlatformFeeBps <= MaxFeeBps
	Referrer       string // address receiving the referral share; empty = none
	MinCollateral  int64  // minimum collateral per settlement, micro-units
	Paused         bool   // gates every mutating vault operation
	UpdatedAt      time.Time
	UpdatedBy      string
}

// SplitPremium divides a realized premium into the platform fee, the referrer
// share carved out of that fee, and the net premium credited to the owner.
// The referrer share is half of the platform fee when a referrer is
// configured, zero otherwise.
func (p FeePolicy) SplitPremium(premium int64) (netPremium, platformFee, referrerShare int64) {
	platformFee = premium * p.PlatformFeeBps / FeeBpsDenominator
	netPremium = premium - platformFee
	if p.Referrer != "" {
		referrerShare = platformFee / 2
		platformFee -= referrerShare
	}
	return netPremium, platformFee, referrerShare
}
