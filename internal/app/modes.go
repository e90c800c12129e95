package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/optionsvault/internal/crypto"
	"github.com/alanyoungcy/optionsvault/internal/domain"
	"github.com/alanyoungcy/optionsvault/internal/platform/market"
	"github.com/alanyoungcy/optionsvault/internal/server"
	"github.com/alanyoungcy/optionsvault/internal/server/handler"
	"github.com/alanyoungcy/optionsvault/internal/server/ws"
	"github.com/alanyoungcy/optionsvault/internal/service"
)

// services bundles the vault's domain services built on top of Dependencies.
type services struct {
	admin      *service.AdminService
	collateral *service.CollateralService
	positions  *service.PositionService
	settlement *service.SettlementService
	validator  *service.OrderValidator
	market     *market.Client
}

// buildServices constructs the full service graph: venue client, admin policy
// service, collateral accounting, position ledger, and the settlement engine.
func (a *App) buildServices(ctx context.Context, deps *Dependencies) (*services, error) {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("build services: load operator key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Market.ChainID)
	if err != nil {
		return nil, fmt.Errorf("build services: create signer: %w", err)
	}

	// Venue client: use configured HMAC credentials when present, otherwise
	// derive them by signing the venue auth message.
	var hmacAuth *crypto.HMACAuth
	if a.cfg.Market.ApiKey != "" {
		hmacAuth = &crypto.HMACAuth{
			Key:        a.cfg.Market.ApiKey,
			Secret:     a.cfg.Market.ApiSecret,
			Passphrase: a.cfg.Market.ApiPassphrase,
		}
	}
	marketClient := market.NewClient(a.cfg.Market.BaseURL, signer, hmacAuth)
	if hmacAuth == nil {
		if err := marketClient.Authenticate(ctx); err != nil {
			a.logger.WarnContext(ctx, "venue credential derivation failed; fill submission will be rejected until the venue is reachable",
				slog.String("error", err.Error()),
			)
		}
	}

	adminSvc := service.NewAdminService(
		a.cfg.Vault.AdminAddress, deps.PolicyStore, deps.AuditStore, a.logger,
	).WithEventBus(deps.EventBus)
	if err := adminSvc.Load(ctx, domain.FeePolicy{
		PlatformFeeBps: a.cfg.Vault.DefaultFeeBps,
		Referrer:       a.cfg.Vault.Referrer,
		MinCollateral:  a.cfg.Vault.MinCollateral,
	}); err != nil {
		return nil, fmt.Errorf("build services: load fee policy: %w", err)
	}

	collateralSvc := service.NewCollateralService(
		deps.AccountStore, deps.LockManager, adminSvc, deps.AuditStore, a.logger,
	).WithEventBus(deps.EventBus)

	positionSvc := service.NewPositionService(deps.PositionStore, deps.AuditStore, a.logger)

	validator := service.NewOrderValidator(deps.ConsumedOrderStore, a.cfg.Market.ChainID).
		WithCache(deps.ConsumedCache)

	settlementSvc := service.NewSettlementService(
		validator, collateralSvc, positionSvc, adminSvc, marketClient,
		deps.ConsumedOrderStore, deps.AuditStore,
		a.cfg.Vault.PlatformAccount, a.logger,
	).
		WithEventBus(deps.EventBus).
		WithConsumedCache(deps.ConsumedCache).
		WithMarketTimeout(a.cfg.Market.SubmitTimeout.Duration)

	return &services{
		admin:      adminSvc,
		collateral: collateralSvc,
		positions:  positionSvc,
		settlement: settlementSvc,
		validator:  validator,
		market:     marketClient,
	}, nil
}

// ServeMode runs the HTTP/WebSocket API and the alert loop.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	a.startServer(ctx, g, deps, svcs)
	a.startAlertLoop(ctx, g, deps)
	a.startOfferFeed(ctx, g, svcs)

	return g.Wait()
}

// ArchiveMode runs only the periodic cold-data export to object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: object storage is not configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveLoop(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API server, the alert loop, and (when configured) the
// archive loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	a.startServer(ctx, g, deps, svcs)
	a.startAlertLoop(ctx, g, deps)
	a.startOfferFeed(ctx, g, svcs)

	if a.cfg.Archive.Enabled {
		if deps.Archiver == nil {
			a.logger.WarnContext(ctx, "archive.enabled is set but object storage is not wired; skipping archival")
		} else {
			a.startArchiveLoop(ctx, g, deps)
		}
	}

	return g.Wait()
}

// startServer registers the REST handlers and the WebSocket hub and adds the
// HTTP server goroutines to the errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server.enabled is false; API surface disabled")
		return
	}

	hub := ws.NewHub(deps.EventBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Status:      handler.NewStatusHandler(a.cfg.Mode, svcs.admin),
		Accounts:    handler.NewAccountHandler(svcs.collateral, a.logger),
		Settlements: handler.NewSettlementHandler(svcs.settlement, a.logger),
		Positions:   handler.NewPositionHandler(svcs.positions, a.logger),
		Admin:       handler.NewAdminHandler(svcs.admin, deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimitRPM: a.cfg.Server.RateLimitRPM,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveLoop periodically exports settled positions and old audit
// entries that fall outside the retention window. One export runs immediately
// on startup so a crashed scheduler never leaves a gap longer than the
// interval.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	runOnce := func() {
		cutoff := time.Now().UTC().Add(-retention)

		positions, err := deps.Archiver.ArchivePositions(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: positions export failed",
				slog.String("error", err.Error()),
			)
		}
		audit, err := deps.Archiver.ArchiveAudit(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: audit export failed",
				slog.String("error", err.Error()),
			)
		}
		if positions > 0 || audit > 0 {
			a.logger.InfoContext(ctx, "archive: export complete",
				slog.Int64("positions", positions),
				slog.Int64("audit_entries", audit),
				slog.Time("cutoff", cutoff),
			)
		}
	}

	g.Go(func() error {
		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})

	a.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
}

// startOfferFeed connects to the venue's signed-offer stream when configured
// and pre-validates each offer against the current policy. Offers that would
// fail settlement are logged up front, which surfaces clock skew and bad
// maker signatures long before anyone submits a fill.
func (a *App) startOfferFeed(ctx context.Context, g *errgroup.Group, svcs *services) {
	if a.cfg.Market.WsURL == "" {
		return
	}

	feed := market.NewOfferFeed(a.cfg.Market.WsURL)
	feed.OnOffer(func(order domain.OptionOrder, signature string) {
		hash, err := svcs.validator.Validate(ctx, order, signature, order.MaxCollateral, time.Now().UTC())
		if err != nil {
			a.logger.WarnContext(ctx, "offer feed: invalid offer",
				slog.String("maker", order.Maker),
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.DebugContext(ctx, "offer feed: offer observed",
			slog.String("order_hash", hash),
			slog.String("maker", order.Maker),
		)
	})

	g.Go(func() error {
		if err := feed.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "offer feed: connect failed; continuing without the feed",
				slog.String("error", err.Error()),
			)
			return nil
		}
		defer feed.Close()

		// Empty token list subscribes to the venue-wide offer firehose.
		if err := feed.Subscribe(ctx, nil); err != nil {
			a.logger.WarnContext(ctx, "offer feed: subscribe failed",
				slog.String("error", err.Error()),
			)
		}

		<-ctx.Done()
		return nil
	})
}

// startAlertLoop forwards operationally interesting bus events to the
// configured notification channels: pause state changes and settlement
// attempts that did not settle.
func (a *App) startAlertLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		adminCh, err := deps.EventBus.Subscribe(ctx, domain.ChannelAdmin)
		if err != nil {
			return fmt.Errorf("alert loop: subscribe admin: %w", err)
		}
		settleCh, err := deps.EventBus.Subscribe(ctx, domain.ChannelSettlements)
		if err != nil {
			return fmt.Errorf("alert loop: subscribe settlements: %w", err)
		}

		for {
			select {
			case <-ctx.Done():
				return nil

			case msg, ok := <-adminCh:
				if !ok {
					return nil
				}
				var ev domain.AdminEvent
				if err := json.Unmarshal(msg, &ev); err != nil {
					continue
				}
				if ev.Action == "pause" || ev.Action == "unpause" {
					_ = deps.Notifier.Notify(ctx, "vault_paused",
						fmt.Sprintf("Vault %sd", ev.Action),
						fmt.Sprintf("by %s (policy v%d)", ev.Caller, ev.Version),
					)
				}

			case msg, ok := <-settleCh:
				if !ok {
					return nil
				}
				var ev domain.SettlementEvent
				if err := json.Unmarshal(msg, &ev); err != nil {
					continue
				}
				if ev.Outcome != "settled" {
					_ = deps.Notifier.Notify(ctx, "settlement_failed",
						fmt.Sprintf("Settlement %s", ev.Outcome),
						fmt.Sprintf("owner %s, order %s", ev.Owner, ev.OrderHash),
					)
				}
			}
		}
	})
}
