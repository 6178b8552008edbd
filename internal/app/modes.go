package app

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"perpsim/internal/domain"
	"perpsim/internal/feed"
	"perpsim/internal/server"
	"perpsim/internal/server/handler"
	"perpsim/internal/server/ws"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// SimMode runs the self-contained simulation: the engine ticks on its own,
// publishes through the in-process bus, and serves the REST and WebSocket
// API.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode")

	g, ctx := errgroup.WithContext(ctx)

	deps.Engine.Start()
	g.Go(func() error {
		<-ctx.Done()
		deps.Engine.Stop()
		return ctx.Err()
	})

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// FullMode is SimMode backed by external infrastructure: events flow through
// Redis pub/sub, the latest ticker and book payloads are cached for late
// joiners, and closed trades are archived to PostgreSQL.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	deps.Engine.Start()
	g.Go(func() error {
		<-ctx.Done()
		deps.Engine.Stop()
		return ctx.Err()
	})

	// Snapshot writer: keep the latest market payloads in Redis so a
	// late-joining frontend can render before the next tick.
	for _, channel := range []string{domain.ChannelTicks, domain.ChannelBook} {
		g.Go(func() error {
			return a.runSnapshotWriter(ctx, deps, channel)
		})
	}

	// Trade archiver: persist every closed position.
	g.Go(func() error {
		return a.runTradeArchiver(ctx, deps)
	})

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// MirrorMode reflects a remote exchange backend: a poll loop feeds its ticker
// and book into the engine, which suspends its own price walk. The engine is
// not started; the feed is the sole market driver, and order placement is
// proxied to the remote API.
func (a *App) MirrorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mirror mode",
		slog.String("remote", a.cfg.Remote.BaseURL),
	)

	g, ctx := errgroup.WithContext(ctx)

	mirror := feed.NewMirrorFeed(
		deps.Remote,
		deps.Engine,
		a.cfg.Market.TickerID,
		a.cfg.Remote.PollInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return mirror.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// runSnapshotWriter mirrors one bus channel into the Redis snapshot cache.
func (a *App) runSnapshotWriter(ctx context.Context, deps *Dependencies, channel string) error {
	msgs, err := deps.Bus.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := deps.Snapshots.Set(ctx, a.cfg.Market.TickerID, channel, payload); err != nil {
				a.logger.WarnContext(ctx, "snapshot write failed",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// runTradeArchiver persists closed-trade events into the transaction store.
// Inserts are idempotent, so redelivered events are harmless.
func (a *App) runTradeArchiver(ctx context.Context, deps *Dependencies) error {
	msgs, err := deps.Bus.Subscribe(ctx, domain.ChannelTrades)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			var tx domain.Transaction
			if err := json.Unmarshal(payload, &tx); err != nil {
				a.logger.WarnContext(ctx, "malformed trade event",
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := deps.TxStore.Insert(ctx, tx); err != nil {
				a.logger.ErrorContext(ctx, "trade archive failed",
					slog.Uint64("id", tx.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled. In mirror mode order placement is forwarded to the remote
// backend instead of the local book.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		TickerID:  a.cfg.Market.TickerID,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var forwarder handler.OrderForwarder
	var accounts handler.AccountSource
	if deps.Remote != nil {
		forwarder = deps.Remote
		accounts = deps.Remote
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, deps.Engine.Running, a.logger),
		Market:    handler.NewMarketHandler(deps.Engine, a.cfg.Market.TickerID, a.cfg.Book.Depth, a.logger),
		Orders:    handler.NewOrderHandler(deps.Engine, forwarder, a.cfg.Market.TickerID, a.logger),
		Positions: handler.NewPositionHandler(deps.Engine, a.logger),
		Account:   handler.NewAccountHandler(deps.Engine, accounts, a.logger),
		Bot:       handler.NewBotHandler(deps.Engine, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}
