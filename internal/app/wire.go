package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"perpsim/internal/bus"
	redisc "perpsim/internal/cache/redis"
	"perpsim/internal/config"
	"perpsim/internal/domain"
	"perpsim/internal/engine"
	"perpsim/internal/platform/remote"
	"perpsim/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function. Fields
// that a mode does not need stay nil.
type Dependencies struct {
	Engine *engine.Engine
	Bus    domain.SignalBus

	// Full mode only.
	Snapshots *redisc.SnapshotCache
	TxStore   *postgres.TransactionStore

	// Mirror mode only.
	Remote *remote.Client
}

// needsRedis returns true for modes that publish through Redis instead of
// the in-process bus.
func needsRedis(mode string) bool {
	return mode == "full"
}

// needsPostgres returns true for modes that archive closed trades.
func needsPostgres(mode string) bool {
	return mode == "full"
}

// engineConfig maps the application configuration onto exact-decimal engine
// parameters.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		TickerID:      cfg.Market.TickerID,
		BaseCurrency:  cfg.Market.BaseCurrency,
		QuoteCurrency: cfg.Market.QuoteCurrency,
		ProductType:   cfg.Market.ProductType,

		StartPrice:   decimal.NewFromFloat(cfg.Sim.StartPrice),
		Volatility:   decimal.NewFromFloat(cfg.Sim.Volatility),
		TickInterval: cfg.Sim.TickInterval.Duration,
		Seed:         cfg.Sim.Seed,

		OrderLevels: cfg.Book.OrderLevels,
		SpreadPct:   decimal.NewFromFloat(cfg.Book.SpreadPct),
		PriceStep:   decimal.NewFromFloat(cfg.Book.PriceStep),
		BaseLotSize: decimal.NewFromFloat(cfg.Book.BaseLotSize),
		MinLots:     cfg.Book.MinLots,
		MaxLots:     cfg.Book.MaxLots,

		MakerFeeRate:    decimal.NewFromFloat(cfg.Fees.MakerRate),
		TakerFeeRate:    decimal.NewFromFloat(cfg.Fees.TakerRate),
		FundingRate:     decimal.NewFromFloat(cfg.Funding.Rate),
		NextFundingRate: decimal.NewFromFloat(cfg.Funding.NextRate),
		NextFundingTime: cfg.Funding.NextTimestamp,

		PayoutAssetUSD: decimal.NewFromFloat(cfg.Market.PayoutAssetUSD),
		FeeAssetUSD:    decimal.NewFromFloat(cfg.Market.FeeAssetUSD),

		MinOrderAmount: decimal.NewFromFloat(cfg.Limits.MinOrderAmount),
		MaxOrderAmount: decimal.NewFromFloat(cfg.Limits.MaxOrderAmount),
		SeedVolume:     decimal.NewFromFloat(cfg.Limits.SeedVolume),

		UserBalances: domain.Balances{
			PayoutAsset: decimal.NewFromFloat(cfg.Balances.UserPayout),
			FeeAsset:    decimal.NewFromFloat(cfg.Balances.UserFee),
		},
		ProtocolBalances: domain.Balances{
			PayoutAsset: decimal.NewFromFloat(cfg.Balances.ProtocolPayout),
			FeeAsset:    decimal.NewFromFloat(cfg.Balances.ProtocolFee),
		},

		ContractPrice:         cfg.Market.ContractPrice,
		ContractPriceCurrency: cfg.Market.ContractPriceCurrency,

		PauseTrades: cfg.Sim.PauseTrades,
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Signal bus ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redisc.New(ctx, redisc.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redisc.NewSignalBus(redisClient)
		deps.Snapshots = redisc.NewSnapshotCache(redisClient)
	} else {
		deps.Bus = bus.NewMemory()
	}

	// --- PostgreSQL trade archive ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.EnsureSchema {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.TxStore = postgres.NewTransactionStore(pgClient.Pool(), cfg.Market.TickerID)
	}

	// --- Remote backend client (mirror mode) ---
	if cfg.Mode == "mirror" {
		deps.Remote = remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.ApiKey, cfg.Remote.Timeout.Duration)
	}

	// --- Engine ---
	// Publication happens outside the engine lock, so blocking on the bus
	// cannot stall the tick loop for other readers.
	sigBus := deps.Bus
	notify := func(channel string, payload []byte) {
		if err := sigBus.Publish(context.Background(), channel, payload); err != nil {
			logger.Warn("bus publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}

	eng, err := engine.New(engineConfig(cfg), logger, notify)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: engine: %w", err)
	}
	deps.Engine = eng

	return deps, cleanup, nil
}
