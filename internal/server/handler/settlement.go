package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/optionsvault/internal/domain"
	"github.com/alanyoungcy/optionsvault/internal/service"
)

// SettlementService defines the methods that the settlement handler requires.
type SettlementService interface {
	Settle(ctx context.Context, req service.SettlementRequest) (*service.SettlementResult, error)
}

// SettlementHandler serves the settlement submission endpoint.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlements: settlements,
		logger:      logger,
	}
}

// settleRequest is the body for a settlement submission.
type settleRequest struct {
	Owner      string      `json:"owner"`
	Order      orderWire   `json:"order"`
	Signature  string      `json:"signature"`
	Collateral int64       `json:"collateral"` // micro-units
}

// orderWire is the JSON shape of a signed option order.
type orderWire struct {
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

// settleResponse reports a completed settlement.
type settleResponse struct {
	PositionID     string `json:"position_id"`
	OrderHash      string `json:"order_hash"`
	CorrelationID  string `json:"correlation_id"`
	CollateralUsed int64  `json:"collateral_used"`
	Refunded       int64  `json:"refunded"`
	NetPremium     int64  `json:"net_premium"`
	PlatformFee    int64  `json:"platform_fee"`
	ReferrerShare  int64  `json:"referrer_share"`
}

// SubmitSettlement validates and executes a counter-signed option order.
// POST /api/settlements
func (h *SettlementHandler) SubmitSettlement(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "owner and signature required")
		return
	}

	order, err := req.Order.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order: "+err.Error())
		return
	}

	result, err := h.settlements.Settle(r.Context(), service.SettlementRequest{
		Owner:      req.Owner,
		Order:      order,
		Signature:  req.Signature,
		Collateral: req.Collateral,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: settlement failed",
			slog.String("owner", req.Owner),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, settleResponse{
		PositionID:     result.PositionID,
		OrderHash:      result.OrderHash,
		CorrelationID:  result.CorrelationID,
		CollateralUsed: result.CollateralUsed,
		Refunded:       result.Refunded,
		NetPremium:     result.NetPremium,
		PlatformFee:    result.PlatformFee,
		ReferrerShare:  result.ReferrerShare,
	})
}

func (o orderWire) toDomain() (domain.OptionOrder, error) {
	order := domain.OptionOrder{
		Maker:           o.Maker,
		CollateralToken: o.CollateralToken,
		Strikes:         o.Strikes,
		Expiry:          o.Expiry,
		OrderExpiry:     o.OrderExpiry,
		Price:           o.Price,
		MaxCollateral:   o.MaxCollateral,
		Direction:       domain.OptionDirection(o.Direction),
		Side:            domain.OptionSide(o.Side),
	}
	if o.ExtraData != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(o.ExtraData, "0x"))
		if err != nil {
			return domain.OptionOrder{}, err
		}
		order.ExtraData = raw
	}
	return order, nil
}
