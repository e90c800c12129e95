package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// AdminService owns the fee policy and the pause switch. Every mutation is
// restricted to the single configured administrator address, persisted, and
// audited. Reads come from an in-memory snapshot refreshed on every write,
// guarded by a global lock so policy changes are totally ordered.
type AdminService struct {
	admin  string
	store  domain.PolicyStore
	audit  domain.AuditStore
	bus    domain.EventBus // optional
	logger *slog.Logger

	mu     sync.RWMutex
	policy domain.FeePolicy
}

// NewAdminService creates an AdminService for the given administrator
// address. Call Load before serving traffic.
func NewAdminService(admin string, store domain.PolicyStore, audit domain.AuditStore, logger *slog.Logger) *AdminService {
	return &AdminService{
		admin:  admin,
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "admin")),
	}
}

// WithEventBus attaches an event bus for admin events.
func (s *AdminService) WithEventBus(bus domain.EventBus) *AdminService {
	s.bus = bus
	return s
}

// Load reads the persisted policy, seeding defaults on first start.
func (s *AdminService) Load(ctx context.Context, defaults domain.FeePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, err := s.store.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		policy = defaults
		policy.Version = 1
		policy.UpdatedAt = time.Now().UTC()
		if err := s.store.Save(ctx, policy); err != nil {
			return fmt.Errorf("admin: seed policy: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("admin: load policy: %w", err)
	}

	s.policy = policy
	s.logger.InfoContext(ctx, "fee policy loaded",
		slog.Int64("version", policy.Version),
		slog.Int64("fee_bps", policy.PlatformFeeBps),
		slog.Bool("paused", policy.Paused),
	)
	return nil
}

// Policy returns the current policy snapshot.
func (s *AdminService) Policy(_ context.Context) (domain.FeePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy, nil
}

// SetFee updates the platform fee. Fees above MaxFeeBps are rejected and the
// previous fee stays in force.
func (s *AdminService) SetFee(ctx context.Context, caller string, bps int64) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if bps < 0 || bps > domain.MaxFeeBps {
		return domain.ErrFeeTooHigh
	}

	return s.mutate(ctx, caller, "set_fee", func(p *domain.FeePolicy) {
		p.PlatformFeeBps = bps
	})
}

// SetReferrer updates the platform-level referrer address. The referrer is
// fixed configuration: callers cannot override it per settlement.
func (s *AdminService) SetReferrer(ctx context.Context, caller, referrer string) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	return s.mutate(ctx, caller, "set_referrer", func(p *domain.FeePolicy) {
		p.Referrer = referrer
	})
}

// SetMinCollateral updates the minimum collateral per settlement.
func (s *AdminService) SetMinCollateral(ctx context.Context, caller string, amount int64) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	return s.mutate(ctx, caller, "set_min_collateral", func(p *domain.FeePolicy) {
		p.MinCollateral = amount
	})
}

// Pause closes the gate: every mutating vault operation fails with ErrPaused
// until Unpause.
func (s *AdminService) Pause(ctx context.Context, caller string) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	return s.mutate(ctx, caller, "pause", func(p *domain.FeePolicy) {
		p.Paused = true
	})
}

// Unpause reopens the gate.
func (s *AdminService) Unpause(ctx context.Context, caller string) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	return s.mutate(ctx, caller, "unpause", func(p *domain.FeePolicy) {
		p.Paused = false
	})
}

// authorize rejects every caller except the configured administrator.
func (s *AdminService) authorize(caller string) error {
	if !strings.EqualFold(caller, s.admin) {
		return domain.ErrUnauthorized
	}
	return nil
}

// mutate applies a policy change under the global lock, persists it, and
// emits audit/bus events.
func (s *AdminService) mutate(ctx context.Context, caller, action string, apply func(*domain.FeePolicy)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.policy
	apply(&next)
	next.Version = s.policy.Version + 1
	next.UpdatedAt = time.Now().UTC()
	next.UpdatedBy = caller

	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("admin: save policy (%s): %w", action, err)
	}
	s.policy = next

	_ = s.audit.Log(ctx, "admin_"+action, map[string]any{
		"caller":  caller,
		"version": next.Version,
		"fee_bps": next.PlatformFeeBps,
		"paused":  next.Paused,
	})

	if s.bus != nil {
		payload, err := json.Marshal(domain.AdminEvent{
			Action:  action,
			Caller:  caller,
			Version: next.Version,
			At:      next.UpdatedAt,
		})
		if err == nil {
			_ = s.bus.Publish(ctx, domain.ChannelAdmin, payload)
		}
	}

	s.logger.InfoContext(ctx, "policy updated",
		slog.String("action", action),
		slog.Int64("version", next.Version),
	)
	return nil
}
