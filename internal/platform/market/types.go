package market

import (
	"encoding/hex"
	"strings"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// fillRequest is the venue API payload for a fill submission.
type fillRequest struct {
	Order         apiOrder `json:"order"`
	Signature     string   `json:"signature"`
	Collateral    int64    `json:"collateral"`
	CorrelationID string   `json:"correlationId"`
}

// apiOrder mirrors the venue's order schema.
type apiOrder struct {
	Maker           string  `json:"maker"`
	CollateralToken string  `json:"collateralToken"`
	Strikes         []int64 `json:"strikes"`
	Expiry          int64   `json:"expiry"`
	OrderExpiry     int64   `json:"orderExpiry"`
	Price           int64   `json:"price"`
	MaxCollateral   int64   `json:"maxCollateral"`
	Direction       string  `json:"direction"`
	Side            string  `json:"side"`
	ExtraData       string  `json:"extraData,omitempty"` // hex-encoded
}

// fillResponse is the venue API response to a fill submission.
type fillResponse struct {
	Success        bool   `json:"success"`
	ErrorMsg       string `json:"errorMsg"`
	Premium        int64  `json:"premium"`
	CollateralUsed int64  `json:"collateralUsed"`
	PositionRef    string `json:"positionRef"`
}

// offerMessage is one signed offer from the venue's real-time feed.
type offerMessage struct {
	EventType string   `json:"event_type"`
	Order     apiOrder `json:"order"`
	Signature string   `json:"signature"`
}

// toAPIOrder converts a domain order to the venue wire format.
func toAPIOrder(o domain.OptionOrder) apiOrder {
	a := apiOrder{
		Maker:           o.Maker,
		CollateralToken: o.CollateralToken,
		Strikes:         o.Strikes,
		Expiry:          o.Expiry,
		OrderExpiry:     o.OrderExpiry,
		Price:           o.Price,
		MaxCollateral:   o.MaxCollateral,
		Direction:       string(o.Direction),
		Side:            string(o.Side),
	}
	if len(o.ExtraData) > 0 {
		a.ExtraData = "0x" + hex.EncodeToString(o.ExtraData)
	}
	return a
}

// toDomainOrder converts a venue order to the domain type.
func (a apiOrder) toDomainOrder() domain.OptionOrder {
	o := domain.OptionOrder{
		Maker:           a.Maker,
		CollateralToken: a.CollateralToken,
		Strikes:         a.Strikes,
		Expiry:          a.Expiry,
		OrderExpiry:     a.OrderExpiry,
		Price:           a.Price,
		MaxCollateral:   a.MaxCollateral,
		Direction:       domain.OptionDirection(a.Direction),
		Side:            domain.OptionSide(a.Side),
	}
	if a.ExtraData != "" {
		if raw, err := hex.DecodeString(strings.TrimPrefix(a.ExtraData, "0x")); err == nil {
			o.ExtraData = raw
		}
	}
	return o
}
