// Package server exposes the bond ledger over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
	"github.com/alanyoungcy/bondledgerd/internal/server/handler"
	"github.com/alanyoungcy/bondledgerd/internal/server/middleware"
	"github.com/alanyoungcy/bondledgerd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit bounds requests per client IP per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Bond       *handler.BondHandler
	Holdings   *handler.HoldingHandler
	Allowances *handler.AllowanceHandler
	Transfers  *handler.TransferHandler
	Options    *handler.OptionHandler
	Events     *handler.EventHandler
}

// Server is the HTTP + WebSocket API server for the bond ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (rate limit, logging, auth, CORS) wired around it.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Bond metadata.
	mux.HandleFunc("GET /api/bond", handlers.Bond.GetBond)

	// Principal and allowance queries.
	mux.HandleFunc("GET /api/holdings/{account}", handlers.Holdings.GetHolding)
	mux.HandleFunc("GET /api/allowances/{owner}/{spender}", handlers.Allowances.GetApproval)

	// Transfer mutations.
	mux.HandleFunc("POST /api/transfers", handlers.Transfers.Transfer)
	mux.HandleFunc("POST /api/transfers/all", handlers.Transfers.TransferAll)
	mux.HandleFunc("POST /api/transfers/from", handlers.Transfers.TransferFrom)
	mux.HandleFunc("POST /api/transfers/all-from", handlers.Transfers.TransferAllFrom)

	// Allowance mutations.
	mux.HandleFunc("POST /api/allowances/approve", handlers.Allowances.Approve)
	mux.HandleFunc("POST /api/allowances/approve-all", handlers.Allowances.ApproveAll)
	mux.HandleFunc("POST /api/allowances/decrease", handlers.Allowances.Decrease)
	mux.HandleFunc("POST /api/allowances/revoke-all", handlers.Allowances.RevokeAll)

	// Embedded options.
	mux.HandleFunc("POST /api/options/call", handlers.Options.Call)
	mux.HandleFunc("POST /api/options/put", handlers.Options.Put)
	mux.HandleFunc("POST /api/options/convert", handlers.Options.Convert)
	mux.HandleFunc("GET /api/settlements", handlers.Options.ListSettlements)

	// Event stream reads.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
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
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
