package domain

import "time"

// Event bus channels.
const (
	ChannelSettlements = "settlements"
	ChannelBalances    = "balances"
	ChannelAdmin       = "admin"
)

// SettlementEvent is published on ChannelSettlements after every settlement
// attempt that reached the market, successful or not.
type SettlementEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Owner         string    `json:"owner"`
	OrderHash     string    `json:"order_hash"`
	PositionID    string    `json:"position_id,omitempty"`
	Principal     int64     `json:"principal"`
	NetPremium    int64     `json:"net_premium"`
	PlatformFee   int64     `json:"platform_fee"`
	ReferrerShare int64     `json:"referrer_share"`
	Outcome       string    `json:"outcome"` // "settled", "rejected", "unavailable"
	At            time.Time `json:"at"`
}

// BalanceEvent is published on ChannelBalances after deposits and withdrawals.
type BalanceEvent struct {
	Owner     string    `json:"owner"`
	Available int64     `json:"available"`
	Locked    int64     `json:"locked"`
	Change    int64     `json:"change"`
	Kind      string    `json:"kind"` // "deposit", "withdraw"
	At        time.Time `json:"at"`
}

// AdminEvent is published on ChannelAdmin for every policy change.
type AdminEvent struct {
	Action  string    `json:"action"` // "set_fee", "set_referrer", "set_min_collateral", "pause", "unpause"
	Caller  string    `json:"caller"`
	Version int64     `json:"version"`
	At      time.Time `json:"at"`
}
