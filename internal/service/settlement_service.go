package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// defaultMarketTimeout bounds a single market submission when the caller did
// not configure one.
const defaultMarketTimeout = 15 * time.Second

// MarketAdapter submits validated fills to the external options venue.
// SubmitFill must be synchronous: it returns only after the venue accepted or
// rejected the fill. Rejections map to ErrMarketRejected, transport and
// timeout failures to ErrMarketUnavailable.
type MarketAdapter interface {
	SubmitFill(ctx context.Context, order domain.OptionOrder, signature string, collateral int64, correlationID string) (domain.FillResult, error)
}

// SettlementRequest is one attempt to fill a counter-signed option order with
// the caller's collateral.
type SettlementRequest struct {
	Owner      string
	Order      domain.OptionOrder
	Signature  string
	Collateral int64 // micro-units
}

// SettlementResult reports a completed settlement.
type SettlementResult struct {
	PositionID     string
	OrderHash      string
	CorrelationID  string
	CollateralUsed int64
	Refunded       int64
	NetPremium     int64
	PlatformFee    int64
	ReferrerShare  int64
}

// SettlementService drives the settlement state machine: validate, lock
// collateral, submit to the market, then commit and record or release. The
// collateral service serializes per-owner balance moves; the market call
// itself runs outside the owner's critical section since the locked escrow
// already protects the funds.
type SettlementService struct {
	validator  *OrderValidator
	collateral *CollateralService
	positions  *PositionService
	policy     PolicyReader
	market     MarketAdapter
	consumed   domain.ConsumedOrderStore
	cache      domain.ConsumedCache // optional
	bus        domain.EventBus      // optional
	audit      domain.AuditStore
	logger     *slog.Logger

	platformAccount string
	timeout         time.Duration
	now             func() time.Time
}

// NewSettlementService creates a SettlementService. platformAccount receives
// the platform's share of every premium.
func NewSettlementService(
	validator *OrderValidator,
	collateral *CollateralService,
	positions *PositionService,
	policy PolicyReader,
	market MarketAdapter,
	consumed domain.ConsumedOrderStore,
	audit domain.AuditStore,
	platformAccount string,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		validator:       validator,
		collateral:      collateral,
		positions:       positions,
		policy:          policy,
		market:          market,
		consumed:        consumed,
		audit:           audit,
		platformAccount: platformAccount,
		timeout:         defaultMarketTimeout,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.With(slog.String("component", "settlement")),
	}
}

// WithEventBus attaches an event bus for settlement events.
func (s *SettlementService) WithEventBus(bus domain.EventBus) *SettlementService {
	s.bus = bus
	return s
}

// WithConsumedCache attaches a consumed-order cache kept in sync on
// successful settlements.
func (s *SettlementService) WithConsumedCache(cache domain.ConsumedCache) *SettlementService {
	s.cache = cache
	return s
}

// WithMarketTimeout overrides the per-submission market deadline.
func (s *SettlementService) WithMarketTimeout(d time.Duration) *SettlementService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Settle runs one settlement end to end. On any failure after collateral was
// locked, the lock is released and the owner's balance is exactly what it was
// before the call.
func (s *SettlementService) Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	policy, err := s.policy.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement: load policy: %w", err)
	}
	if policy.Paused {
		return nil, domain.ErrPaused
	}
	if req.Collateral < policy.MinCollateral {
		return nil, domain.ErrCollateralTooSmall
	}
	if req.Collateral <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	orderHash, err := s.validator.Validate(ctx, req.Order, req.Signature, req.Collateral, s.now())
	if err != nil {
		return nil, err
	}

	lock, err := s.collateral.Lock(ctx, req.Owner, req.Collateral)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		slog.String("owner", req.Owner),
		slog.String("order_hash", orderHash),
		slog.String("correlation_id", lock.ID),
	)
	log.InfoContext(ctx, "collateral locked", slog.Int64("amount", req.Collateral))

	fill, err := s.submit(ctx, req, lock.ID)
	if err != nil {
		if relErr := s.collateral.Release(ctx, lock); relErr != nil {
			log.ErrorContext(ctx, "failed to release collateral after market failure",
				slog.String("error", relErr.Error()))
			return nil, relErr
		}
		s.publishOutcome(ctx, req, lock.ID, orderHash, nil, outcomeFor(err))
		return nil, err
	}

	if fill.CollateralUsed < 0 || fill.CollateralUsed > req.Collateral {
		if relErr := s.collateral.Release(ctx, lock); relErr != nil {
			return nil, relErr
		}
		s.collateral.Freeze(ctx, req.Owner,
			fmt.Sprintf("fill used %d of %d locked", fill.CollateralUsed, req.Collateral))
		return nil, fmt.Errorf("settlement: fill exceeds locked collateral: %w", domain.ErrInvariant)
	}

	// Mark consumed before touching balances. If a concurrent settlement of
	// the same order won the race, back out cleanly.
	positionID := uuid.New().String()
	if err := s.consumed.Mark(ctx, orderHash, positionID); err != nil {
		if relErr := s.collateral.Release(ctx, lock); relErr != nil {
			return nil, relErr
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, domain.ErrAlreadyFilled
		}
		return nil, fmt.Errorf("settlement: mark consumed: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Add(ctx, orderHash); err != nil {
			log.WarnContext(ctx, "failed to cache consumed order", slog.String("error", err.Error()))
		}
	}

	netPremium, platformFee, referrerShare := policy.SplitPremium(fill.Premium)
	refund := req.Collateral - fill.CollateralUsed

	if err := s.collateral.Commit(ctx, lock, fill.CollateralUsed, refund); err != nil {
		return nil, err
	}
	if err := s.collateral.Credit(ctx, req.Owner, netPremium); err != nil {
		s.collateral.Freeze(ctx, req.Owner, "premium credit failed after commit")
		return nil, err
	}
	if s.platformAccount != "" {
		if err := s.collateral.Credit(ctx, s.platformAccount, platformFee); err != nil {
			log.ErrorContext(ctx, "failed to credit platform fee", slog.String("error", err.Error()))
		}
	}
	if referrerShare > 0 && policy.Referrer != "" {
		if err := s.collateral.Credit(ctx, policy.Referrer, referrerShare); err != nil {
			log.ErrorContext(ctx, "failed to credit referrer share", slog.String("error", err.Error()))
		}
	}

	pos := domain.Position{
		ID:          positionID,
		Owner:       req.Owner,
		OrderHash:   orderHash,
		ExternalRef: fill.ExternalRef,
		Principal:   fill.CollateralUsed,
		Premium:     netPremium,
		PlatformFee: platformFee + referrerShare,
		Direction:   req.Order.Direction,
		Side:        req.Order.Side,
		Status:      domain.PositionStatusActive,
		OpenedAt:    s.now(),
	}
	if err := s.positions.Record(ctx, pos); err != nil {
		// The order is consumed and balances moved; a missing ledger row is
		// an invariant violation, not something to retry.
		s.collateral.Freeze(ctx, req.Owner, "position record failed after commit")
		return nil, err
	}

	result := &SettlementResult{
		PositionID:     positionID,
		OrderHash:      orderHash,
		CorrelationID:  lock.ID,
		CollateralUsed: fill.CollateralUsed,
		Refunded:       refund,
		NetPremium:     netPremium,
		PlatformFee:    platformFee,
		ReferrerShare:  referrerShare,
	}

	_ = s.audit.Log(ctx, "settlement_completed", map[string]any{
		"owner":           req.Owner,
		"order_hash":      orderHash,
		"position_id":     positionID,
		"correlation_id":  lock.ID,
		"collateral_used": fill.CollateralUsed,
		"net_premium":     netPremium,
		"platform_fee":    platformFee,
		"referrer_share":  referrerShare,
	})
	s.publishOutcome(ctx, req, lock.ID, orderHash, result, "settled")

	log.InfoContext(ctx, "settlement completed",
		slog.String("position_id", positionID),
		slog.Int64("collateral_used", fill.CollateralUsed),
		slog.Int64("net_premium", netPremium),
	)
	return result, nil
}

// submit sends the fill to the market under a bounded deadline and classifies
// the failure mode.
func (s *SettlementService) submit(ctx context.Context, req SettlementRequest, correlationID string) (domain.FillResult, error) {
	mctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fill, err := s.market.SubmitFill(mctx, req.Order, req.Signature, req.Collateral, correlationID)
	if err == nil {
		return fill, nil
	}
	if errors.Is(err, domain.ErrMarketRejected) {
		return domain.FillResult{}, domain.ErrMarketRejected
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(mctx.Err(), context.DeadlineExceeded) {
		return domain.FillResult{}, fmt.Errorf("settlement: market deadline: %w", domain.ErrMarketUnavailable)
	}
	if errors.Is(err, domain.ErrMarketUnavailable) {
		return domain.FillResult{}, err
	}
	return domain.FillResult{}, fmt.Errorf("settlement: submit fill: %w", domain.ErrMarketUnavailable)
}

func (s *SettlementService) publishOutcome(ctx context.Context, req SettlementRequest, correlationID, orderHash string, result *SettlementResult, outcome string) {
	if s.bus == nil {
		return
	}

	event := domain.SettlementEvent{
		CorrelationID: correlationID,
		Owner:         req.Owner,
		OrderHash:     orderHash,
		Principal:     req.Collateral,
		Outcome:       outcome,
		At:            s.now(),
	}
	if result != nil {
		event.PositionID = result.PositionID
		event.Principal = result.CollateralUsed
		event.NetPremium = result.NetPremium
		event.PlatformFee = result.PlatformFee
		event.ReferrerShare = result.ReferrerShare
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to publish settlement event",
			slog.String("order_hash", orderHash),
			slog.String("error", err.Error()),
		)
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrMarketRejected):
		return "rejected"
	case errors.Is(err, domain.ErrMarketUnavailable):
		return "unavailable"
	default:
		return "failed"
	}
}
