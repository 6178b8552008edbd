// Package server is the HTTP and WebSocket API surface of the simulator.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"perpsim/internal/server/handler"
	"perpsim/internal/server/middleware"
	"perpsim/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Market    *handler.MarketHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Account   *handler.AccountHandler
	Bot       *handler.BotHandler
}

// Server is the headless HTTP + WebSocket API server for the simulator.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Public market data.
	mux.HandleFunc("GET /v1/contracts/{ticker}", handlers.Market.GetContract)
	mux.HandleFunc("GET /v1/contracts/{ticker}/specs", handlers.Market.GetSpecs)
	mux.HandleFunc("GET /v1/orderbook/{ticker}", handlers.Market.GetOrderbook)
	mux.HandleFunc("GET /v1/orders/{ticker}", handlers.Market.GetRecentOrders)

	// Order endpoints.
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOpen)
	mux.HandleFunc("POST /api/orders", handlers.Orders.Place)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.Cancel)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListOpen)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.Close)
	mux.HandleFunc("GET /api/transactions", handlers.Positions.ListTransactions)

	// Account endpoints.
	mux.HandleFunc("GET /api/account", handlers.Account.GetAccount)
	mux.HandleFunc("POST /api/convert", handlers.Account.Convert)

	// Simulation control.
	mux.HandleFunc("POST /api/bot/start", handlers.Bot.Start)
	mux.HandleFunc("POST /api/bot/stop", handlers.Bot.Stop)
	mux.HandleFunc("GET /api/bot/status", handlers.Bot.Status)
	mux.HandleFunc("POST /api/bot/pause", handlers.Bot.Pause)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

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

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
