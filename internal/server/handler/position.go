package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Positions(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Position, error)
	Get(ctx context.Context, id string) (domain.Position, error)
	Settle(ctx context.Context, id string, pnl *int64) error
	Aggregate(ctx context.Context, owner string) (domain.PositionAggregate, error)
	Totals(ctx context.Context) (domain.VaultTotals, error)
}

// PositionHandler serves position ledger endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns an owner's positions in creation order.
// GET /api/positions?owner=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	positions, err := h.positions.Positions(r.Context(), owner, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns a single position by id.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	pos, err := h.positions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// settlePositionRequest is the body for a position settle request.
type settlePositionRequest struct {
	RealizedPnL *int64 `json:"realized_pnl"` // micro-units, optional
}

// SettlePosition transitions a position to settled.
// POST /api/positions/{id}/settle
func (h *PositionHandler) SettlePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req settlePositionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.positions.Settle(r.Context(), id, req.RealizedPnL); err != nil {
		h.logger.WarnContext(r.Context(), "handler: settle position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	pos, err := h.positions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// GetSummary returns an owner's aggregate position counters, including total
// premium earned.
// GET /api/accounts/{owner}/summary
func (h *PositionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner path parameter required")
		return
	}

	agg, err := h.positions.Aggregate(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":           owner,
		"positions":       agg.Count,
		"total_principal": agg.TotalPrincipal,
		"premium_earned":  agg.TotalPremium,
		"value_locked":    agg.ValueLocked,
	})
}

// GetTotals returns the vault-wide counters.
// GET /api/vault/totals
func (h *PositionHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.positions.Totals(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: vault totals failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions_created": totals.PositionsCreated,
		"value_locked":      totals.ValueLocked,
		"premium_earned":    totals.PremiumEarned,
	})
}
