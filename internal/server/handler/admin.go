package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// AdminService defines the methods that the admin handler requires.
type AdminService interface {
	Policy(ctx context.Context) (domain.FeePolicy, error)
	SetFee(ctx context.Context, caller string, bps int64) error
	SetReferrer(ctx context.Context, caller, referrer string) error
	SetMinCollateral(ctx context.Context, caller string, amount int64) error
	Pause(ctx context.Context, caller string) error
	Unpause(ctx context.Context, caller string) error
}

// AuditReader lists audit log entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves the administrative endpoints. Authorization happens in
// the admin service against the configured administrator address; the caller
// identifies itself via the X-Caller-Address header.
type AdminHandler struct {
	admin  AdminService
	audit  AuditReader
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, audit AuditReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		audit:  audit,
		logger: logger,
	}
}

// policyResponse is the JSON shape of the fee policy.
type policyResponse struct {
	Version        int64  `json:"version"`
	PlatformFeeBps int64  `json:"platform_fee_bps"`
	Referrer       string `json:"referrer,omitempty"`
	MinCollateral  int64  `json:"min_collateral"`
	Paused         bool   `json:"paused"`
	UpdatedBy      string `json:"updated_by,omitempty"`
}

// GetPolicy returns the current fee policy.
// GET /api/admin/policy
func (h *AdminHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.admin.Policy(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policyResponse{
		Version:        policy.Version,
		PlatformFeeBps: policy.PlatformFeeBps,
		Referrer:       policy.Referrer,
		MinCollateral:  policy.MinCollateral,
		Paused:         policy.Paused,
		UpdatedBy:      policy.UpdatedBy,
	})
}

// SetFee updates the platform fee.
// PUT /api/admin/fee
func (h *AdminHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bps int64 `json:"bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.mutate(w, r, "set_fee", func(ctx context.Context, caller string) error {
		return h.admin.SetFee(ctx, caller, req.Bps)
	})
}

// SetReferrer updates the platform-level referrer address.
// PUT /api/admin/referrer
func (h *AdminHandler) SetReferrer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.mutate(w, r, "set_referrer", func(ctx context.Context, caller string) error {
		return h.admin.SetReferrer(ctx, caller, req.Address)
	})
}

// SetMinCollateral updates the minimum collateral per settlement.
// PUT /api/admin/min-collateral
func (h *AdminHandler) SetMinCollateral(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.mutate(w, r, "set_min_collateral", func(ctx context.Context, caller string) error {
		return h.admin.SetMinCollateral(ctx, caller, req.Amount)
	})
}

// Pause halts every mutating vault operation.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "pause", h.admin.Pause)
}

// Unpause resumes vault operations.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "unpause", h.admin.Unpause)
}

// ListAudit returns audit log entries, newest last.
// GET /api/admin/audit
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AdminHandler) mutate(w http.ResponseWriter, r *http.Request, action string, op func(context.Context, string) error) {
	caller := callerAddress(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "X-Caller-Address header required")
		return
	}

	if err := op(r.Context(), caller); err != nil {
		h.logger.WarnContext(r.Context(), "handler: admin action failed",
			slog.String("action", action),
			slog.String("caller", caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	h.GetPolicy(w, r)
}
