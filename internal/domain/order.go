package domain

import "time"

// OptionSide distinguishes calls from puts.
type OptionSide string

const (
	OptionSideCall OptionSide = "call"
	OptionSidePut  OptionSide = "put"
)

// OptionDirection distinguishes long from short exposure.
type OptionDirection string

const (
	DirectionLong  OptionDirection = "long"
	DirectionShort OptionDirection = "short"
)

// OptionOrder is a pre-signed option offer sourced from the external options
// order book. Orders are immutable once accepted; each one is consumable at
// most once, enforced via its EIP-712 hash in the consumed-order set.
//
// All monetary fields are fixed-point micro-units (1e6 = one settlement-asset
// unit).
type OptionOrder struct {
	Maker           string          // maker address, 0x-prefixed hex
	CollateralToken string          // settlement asset contract address
	Strikes         []int64         // strike prices
	Expiry          int64           // option expiry, unix seconds
	OrderExpiry     int64           // offer validity deadline, unix seconds
	Price           int64           // quoted premium
	MaxCollateral   int64           // maximum collateral the maker will match
	Direction       OptionDirection
	Side            OptionSide
	ExtraData       []byte          // opaque, forwarded to the venue untouched
}

// Expired reports whether the order can no longer be filled at the given
// time. Both the option expiry and the offer deadline are checked.
func (o OptionOrder) Expired(now time.Time) bool {
	ts := now.Unix()
	return ts > o.Expiry || ts > o.OrderExpiry
}

// FillResult is the market adapter's response to a successful fill.
type FillResult struct {
	Premium        int64  // realized premium, micro-units
	CollateralUsed int64  // collateral actually consumed, micro-units
	ExternalRef    string // venue-side position reference
}
