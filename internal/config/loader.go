package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPSIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.TickerID, "PERPSIM_MARKET_TICKER_ID")
	setStr(&cfg.Market.BaseCurrency, "PERPSIM_MARKET_BASE_CURRENCY")
	setStr(&cfg.Market.QuoteCurrency, "PERPSIM_MARKET_QUOTE_CURRENCY")
	setStr(&cfg.Market.ProductType, "PERPSIM_MARKET_PRODUCT_TYPE")
	setFloat64(&cfg.Market.ContractPrice, "PERPSIM_MARKET_CONTRACT_PRICE")
	setStr(&cfg.Market.ContractPriceCurrency, "PERPSIM_MARKET_CONTRACT_PRICE_CURRENCY")
	setFloat64(&cfg.Market.PayoutAssetUSD, "PERPSIM_MARKET_PAYOUT_ASSET_USD")
	setFloat64(&cfg.Market.FeeAssetUSD, "PERPSIM_MARKET_FEE_ASSET_USD")

	// ── Sim ──
	setFloat64(&cfg.Sim.StartPrice, "PERPSIM_SIM_START_PRICE")
	setFloat64(&cfg.Sim.Volatility, "PERPSIM_SIM_VOLATILITY")
	setDuration(&cfg.Sim.TickInterval, "PERPSIM_SIM_TICK_INTERVAL")
	setUint64(&cfg.Sim.Seed, "PERPSIM_SIM_SEED")
	setBool(&cfg.Sim.PauseTrades, "PERPSIM_SIM_PAUSE_TRADES")

	// ── Book ──
	setInt(&cfg.Book.OrderLevels, "PERPSIM_BOOK_ORDER_LEVELS")
	setFloat64(&cfg.Book.SpreadPct, "PERPSIM_BOOK_SPREAD_PCT")
	setFloat64(&cfg.Book.PriceStep, "PERPSIM_BOOK_PRICE_STEP")
	setFloat64(&cfg.Book.BaseLotSize, "PERPSIM_BOOK_BASE_LOT_SIZE")
	setInt(&cfg.Book.MinLots, "PERPSIM_BOOK_MIN_LOTS")
	setInt(&cfg.Book.MaxLots, "PERPSIM_BOOK_MAX_LOTS")
	setInt(&cfg.Book.Depth, "PERPSIM_BOOK_DEPTH")

	// ── Fees ──
	setFloat64(&cfg.Fees.MakerRate, "PERPSIM_FEES_MAKER_RATE")
	setFloat64(&cfg.Fees.TakerRate, "PERPSIM_FEES_TAKER_RATE")

	// ── Funding ──
	setFloat64(&cfg.Funding.Rate, "PERPSIM_FUNDING_RATE")
	setFloat64(&cfg.Funding.NextRate, "PERPSIM_FUNDING_NEXT_RATE")
	setInt64(&cfg.Funding.NextTimestamp, "PERPSIM_FUNDING_NEXT_TIMESTAMP")

	// ── Limits ──
	setFloat64(&cfg.Limits.MinOrderAmount, "PERPSIM_LIMITS_MIN_ORDER_AMOUNT")
	setFloat64(&cfg.Limits.MaxOrderAmount, "PERPSIM_LIMITS_MAX_ORDER_AMOUNT")
	setFloat64(&cfg.Limits.SeedVolume, "PERPSIM_LIMITS_SEED_VOLUME")

	// ── Balances ──
	setFloat64(&cfg.Balances.UserPayout, "PERPSIM_BALANCES_USER_PAYOUT")
	setFloat64(&cfg.Balances.UserFee, "PERPSIM_BALANCES_USER_FEE")
	setFloat64(&cfg.Balances.ProtocolPayout, "PERPSIM_BALANCES_PROTOCOL_PAYOUT")
	setFloat64(&cfg.Balances.ProtocolFee, "PERPSIM_BALANCES_PROTOCOL_FEE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPSIM_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PERPSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PERPSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPSIM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PERPSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PERPSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.EnsureSchema, "PERPSIM_POSTGRES_ENSURE_SCHEMA")

	// ── Remote ──
	setStr(&cfg.Remote.BaseURL, "PERPSIM_REMOTE_BASE_URL")
	setStr(&cfg.Remote.ApiKey, "PERPSIM_REMOTE_API_KEY")
	setDuration(&cfg.Remote.PollInterval, "PERPSIM_REMOTE_POLL_INTERVAL")
	setDuration(&cfg.Remote.Timeout, "PERPSIM_REMOTE_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PERPSIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PERPSIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PERPSIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PERPSIM_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPSIM_MODE")
	setStr(&cfg.LogLevel, "PERPSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
