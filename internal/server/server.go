// Package server provides the HTTP and WebSocket API surface of the vault.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/optionsvault/internal/domain"
	"github.com/alanyoungcy/optionsvault/internal/server/handler"
	"github.com/alanyoungcy/optionsvault/internal/server/middleware"
	"github.com/alanyoungcy/optionsvault/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	RateLimitRPM  int    // requests per client IP per minute; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Accounts    *handler.AccountHandler
	Settlements *handler.SettlementHandler
	Positions   *handler.PositionHandler
	Admin       *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the vault.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Collateral account endpoints.
	mux.HandleFunc("GET /api/accounts/{owner}", handlers.Accounts.GetBalance)
	mux.HandleFunc("POST /api/accounts/{owner}/deposit", handlers.Accounts.Deposit)
	mux.HandleFunc("POST /api/accounts/{owner}/withdraw", handlers.Accounts.Withdraw)
	mux.HandleFunc("GET /api/accounts/{owner}/summary", handlers.Positions.GetSummary)

	// Settlement endpoint.
	mux.HandleFunc("POST /api/settlements", handlers.Settlements.SubmitSettlement)

	// Position ledger endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("POST /api/positions/{id}/settle", handlers.Positions.SettlePosition)
	mux.HandleFunc("GET /api/vault/totals", handlers.Positions.GetTotals)

	// Admin endpoints.
	mux.HandleFunc("GET /api/admin/policy", handlers.Admin.GetPolicy)
	mux.HandleFunc("PUT /api/admin/fee", handlers.Admin.SetFee)
	mux.HandleFunc("PUT /api/admin/referrer", handlers.Admin.SetReferrer)
	mux.HandleFunc("PUT /api/admin/min-collateral", handlers.Admin.SetMinCollateral)
	mux.HandleFunc("POST /api/admin/pause", handlers.Admin.Pause)
	mux.HandleFunc("POST /api/admin/unpause", handlers.Admin.Unpause)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when configured.
	if limiter != nil && cfg.RateLimitRPM > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitRPM, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
