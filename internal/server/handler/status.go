package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// StatusHandler serves the backend status (mode, pause state, policy version).
type StatusHandler struct {
	Mode   string
	policy interface {
		Policy(ctx context.Context) (domain.FeePolicy, error)
	}
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string, policy interface {
	Policy(ctx context.Context) (domain.FeePolicy, error)
}) *StatusHandler {
	return &StatusHandler{Mode: mode, policy: policy}
}

// GetStatus responds with the current backend mode and pause state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode": h.Mode,
	}
	if h.policy != nil {
		if policy, err := h.policy.Policy(r.Context()); err == nil {
			resp["paused"] = policy.Paused
			resp["policy_version"] = policy.Version
			resp["platform_fee_bps"] = policy.PlatformFeeBps
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
