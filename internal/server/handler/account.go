package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// CollateralService defines the methods that the account handler requires.
type CollateralService interface {
	Deposit(ctx context.Context, owner string, amount int64) error
	Withdraw(ctx context.Context, owner string, amount int64) error
	Balance(ctx context.Context, owner string) (domain.CollateralAccount, error)
}

// AccountHandler serves collateral account endpoints.
type AccountHandler struct {
	collateral CollateralService
	logger     *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(collateral CollateralService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		collateral: collateral,
		logger:     logger,
	}
}

// amountRequest is the body for deposit and withdraw requests.
type amountRequest struct {
	Amount int64 `json:"amount"` // micro-units
}

// balanceResponse wraps an account balance.
type balanceResponse struct {
	Owner     string `json:"owner"`
	Available int64  `json:"available"`
	Locked    int64  `json:"locked"`
	Frozen    bool   `json:"frozen"`
}

// Deposit credits collateral to the owner's available balance.
// POST /api/accounts/{owner}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "deposit", h.collateral.Deposit)
}

// Withdraw debits collateral from the owner's available balance.
// POST /api/accounts/{owner}/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "withdraw", h.collateral.Withdraw)
}

func (h *AccountHandler) move(w http.ResponseWriter, r *http.Request, kind string, op func(context.Context, string, int64) error) {
	owner := pathParam(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner path parameter required")
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := op(r.Context(), owner, req.Amount); err != nil {
		h.logger.WarnContext(r.Context(), "handler: balance move failed",
			slog.String("kind", kind),
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	account, err := h.collateral.Balance(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(account))
}

// GetBalance returns the owner's collateral balances.
// GET /api/accounts/{owner}
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner path parameter required")
		return
	}

	account, err := h.collateral.Balance(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(account))
}

func toBalanceResponse(a domain.CollateralAccount) balanceResponse {
	return balanceResponse{
		Owner:     a.Owner,
		Available: a.Available,
		Locked:    a.Locked,
		Frozen:    a.Frozen,
	}
}
