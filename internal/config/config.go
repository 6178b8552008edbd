// Package config defines the top-level configuration for the perpetual
// simulator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPSIM_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Sim      SimConfig      `toml:"sim"`
	Book     BookConfig     `toml:"book"`
	Fees     FeesConfig     `toml:"fees"`
	Funding  FundingConfig  `toml:"funding"`
	Limits   LimitsConfig   `toml:"limits"`
	Balances BalancesConfig `toml:"balances"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Remote   RemoteConfig   `toml:"remote"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig identifies the traded contract and its settlement assets.
type MarketConfig struct {
	TickerID              string  `toml:"ticker_id"`
	BaseCurrency          string  `toml:"base_currency"`
	QuoteCurrency         string  `toml:"quote_currency"`
	ProductType           string  `toml:"product_type"`
	ContractPrice         float64 `toml:"contract_price"`
	ContractPriceCurrency string  `toml:"contract_price_currency"`
	// USD marks used for fee and PnL conversion between the quote asset
	// and the payout asset.
	PayoutAssetUSD float64 `toml:"payout_asset_usd"`
	FeeAssetUSD    float64 `toml:"fee_asset_usd"`
}

// SimConfig holds the price-process parameters.
type SimConfig struct {
	StartPrice   float64  `toml:"start_price"`
	Volatility   float64  `toml:"volatility"`
	TickInterval duration `toml:"tick_interval"`
	Seed         uint64   `toml:"seed"`
	PauseTrades  bool     `toml:"pause_trades"`
}

// BookConfig holds the synthetic order book generation parameters.
type BookConfig struct {
	OrderLevels int     `toml:"order_levels"`
	SpreadPct   float64 `toml:"spread_pct"`
	PriceStep   float64 `toml:"price_step"`
	BaseLotSize float64 `toml:"base_lot_size"`
	MinLots     int     `toml:"min_lots"`
	MaxLots     int     `toml:"max_lots"`
	Depth       int     `toml:"depth"`
}

// FeesConfig holds maker/taker fee rates as fractions (0.00025 = 2.5 bps).
type FeesConfig struct {
	MakerRate float64 `toml:"maker_rate"`
	TakerRate float64 `toml:"taker_rate"`
}

// FundingConfig holds the advertised funding parameters. The simulator
// reports these on the ticker; it does not apply funding payments.
type FundingConfig struct {
	Rate          float64 `toml:"rate"`
	NextRate      float64 `toml:"next_rate"`
	NextTimestamp int64   `toml:"next_timestamp"`
}

// LimitsConfig bounds order sizes and seeds the reported volume.
type LimitsConfig struct {
	MinOrderAmount float64 `toml:"min_order_amount"`
	MaxOrderAmount float64 `toml:"max_order_amount"`
	SeedVolume     float64 `toml:"seed_volume"`
}

// BalancesConfig seeds the user and protocol wallets.
type BalancesConfig struct {
	UserPayout     float64 `toml:"user_payout"`
	UserFee        float64 `toml:"user_fee"`
	ProtocolPayout float64 `toml:"protocol_payout"`
	ProtocolFee    float64 `toml:"protocol_fee"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the trade
// archive.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
	EnsureSchema bool   `toml:"ensure_schema"`
}

// RemoteConfig points at an external exchange backend for mirror mode.
type RemoteConfig struct {
	BaseURL      string   `toml:"base_url"`
	ApiKey       string   `toml:"api_key"`
	PollInterval duration `toml:"poll_interval"`
	Timeout      duration `toml:"timeout"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects mutating endpoints. Empty disables authentication.
	APIKey string `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			TickerID:              "BCRD-PERPBNB",
			BaseCurrency:          "BCRD",
			QuoteCurrency:         "BNB",
			ProductType:           "Perpetual",
			ContractPrice:         1,
			ContractPriceCurrency: "BCRD",
			PayoutAssetUSD:        0.8,
			FeeAssetUSD:           304,
		},
		Sim: SimConfig{
			StartPrice:   0.0012352,
			Volatility:   0.01,
			TickInterval: duration{time.Second},
			Seed:         0,
			PauseTrades:  false,
		},
		Book: BookConfig{
			OrderLevels: 20,
			SpreadPct:   0.2,
			PriceStep:   0.0000001,
			BaseLotSize: 1000,
			MinLots:     1,
			MaxLots:     10,
			Depth:       50,
		},
		Fees: FeesConfig{
			MakerRate: 0.00025,
			TakerRate: 0.00023,
		},
		Funding: FundingConfig{
			Rate:          0.0001,
			NextRate:      0.00011,
			NextTimestamp: 1672531200000,
		},
		Limits: LimitsConfig{
			MinOrderAmount: 1,
			MaxOrderAmount: 1_000_000,
			SeedVolume:     1_250_000,
		},
		Balances: BalancesConfig{
			UserPayout:     5_000,
			UserFee:        100,
			ProtocolPayout: 100_000,
			ProtocolFee:    5_000,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			DSN:          "",
			Host:         "localhost",
			Port:         5432,
			Database:     "perpsim",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
			EnsureSchema: true,
		},
		Remote: RemoteConfig{
			BaseURL:      "",
			PollInterval: duration{time.Second},
			Timeout:      duration{5 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"sim":    true,
	"full":   true,
	"mirror": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sim, full, mirror)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if c.Market.TickerID == "" {
		errs = append(errs, "market: ticker_id must not be empty")
	}
	if c.Market.PayoutAssetUSD <= 0 {
		errs = append(errs, "market: payout_asset_usd must be > 0")
	}
	if c.Market.FeeAssetUSD <= 0 {
		errs = append(errs, "market: fee_asset_usd must be > 0")
	}

	// Sim
	if c.Sim.StartPrice <= 0 {
		errs = append(errs, "sim: start_price must be > 0")
	}
	if c.Sim.Volatility < 0 || c.Sim.Volatility > 1 {
		errs = append(errs, fmt.Sprintf("sim: volatility must be in [0, 1], got %g", c.Sim.Volatility))
	}
	if c.Sim.TickInterval.Duration <= 0 {
		errs = append(errs, "sim: tick_interval must be > 0")
	}

	// Book
	if c.Book.OrderLevels < 1 || c.Book.OrderLevels > 1000 {
		errs = append(errs, fmt.Sprintf("book: order_levels must be 1-1000, got %d", c.Book.OrderLevels))
	}
	if c.Book.SpreadPct < 0 {
		errs = append(errs, "book: spread_pct must be >= 0")
	}
	if c.Book.PriceStep <= 0 {
		errs = append(errs, "book: price_step must be > 0")
	}
	if c.Book.BaseLotSize <= 0 {
		errs = append(errs, "book: base_lot_size must be > 0")
	}
	if c.Book.MinLots < 1 || c.Book.MaxLots < c.Book.MinLots {
		errs = append(errs, "book: lots must satisfy 1 <= min_lots <= max_lots")
	}

	// Fees
	if c.Fees.MakerRate < 0 || c.Fees.TakerRate < 0 {
		errs = append(errs, "fees: maker_rate and taker_rate must be >= 0")
	}

	// Limits
	if c.Limits.MinOrderAmount <= 0 {
		errs = append(errs, "limits: min_order_amount must be > 0")
	}
	if c.Limits.MaxOrderAmount < c.Limits.MinOrderAmount {
		errs = append(errs, "limits: max_order_amount must be >= min_order_amount")
	}
	if c.Limits.SeedVolume < 0 {
		errs = append(errs, "limits: seed_volume must be >= 0")
	}

	// Balances
	if c.Balances.UserPayout < 0 || c.Balances.UserFee < 0 ||
		c.Balances.ProtocolPayout < 0 || c.Balances.ProtocolFee < 0 {
		errs = append(errs, "balances: all seeded balances must be >= 0")
	}

	// Redis — only reachable in full mode.
	if c.Mode == "full" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty for mode full")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Remote — required for mirror mode.
	if c.Mode == "mirror" {
		if c.Remote.BaseURL == "" {
			errs = append(errs, "remote: base_url is required for mode mirror")
		}
		if c.Remote.PollInterval.Duration <= 0 {
			errs = append(errs, "remote: poll_interval must be > 0")
		}
		if c.Remote.Timeout.Duration <= 0 {
			errs = append(errs, "remote: timeout must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
