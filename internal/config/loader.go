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
// built-in defaults, applies DEXARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.PollingInterval, "DEXARB_ENGINE_POLLING_INTERVAL")
	setInt(&cfg.Engine.ScanEveryNCycles, "DEXARB_ENGINE_SCAN_EVERY_N_CYCLES")
	setFloat64(&cfg.Engine.MinProfitPercentage, "DEXARB_ENGINE_MIN_PROFIT_PERCENTAGE")
	setFloat64(&cfg.Engine.MaxTradeSize, "DEXARB_ENGINE_MAX_TRADE_SIZE")
	setFloat64(&cfg.Engine.SlippageTolerance, "DEXARB_ENGINE_SLIPPAGE_TOLERANCE")
	setStr(&cfg.Engine.GasPriceStrategy, "DEXARB_ENGINE_GAS_PRICE_STRATEGY")
	setFloat64(&cfg.Engine.GasPriceGwei, "DEXARB_ENGINE_GAS_PRICE_GWEI")
	setInt64(&cfg.Engine.AssumedGasUnits, "DEXARB_ENGINE_ASSUMED_GAS_UNITS")
	setBool(&cfg.Engine.AutoExecute, "DEXARB_ENGINE_AUTO_EXECUTE")
	setFloat64(&cfg.Engine.MinConfidenceScore, "DEXARB_ENGINE_MIN_CONFIDENCE_SCORE")
	setStr(&cfg.Engine.RiskTolerance, "DEXARB_ENGINE_RISK_TOLERANCE")
	setStr(&cfg.Engine.Strategy, "DEXARB_ENGINE_STRATEGY")
	setInt(&cfg.Engine.MaxConcurrentTrades, "DEXARB_ENGINE_MAX_CONCURRENT_TRADES")
	setDuration(&cfg.Engine.Retention, "DEXARB_ENGINE_RETENTION")
	setDuration(&cfg.Engine.SweepInterval, "DEXARB_ENGINE_SWEEP_INTERVAL")
	setInt(&cfg.Engine.CircuitThreshold, "DEXARB_ENGINE_CIRCUIT_THRESHOLD")
	setDuration(&cfg.Engine.CircuitWindow, "DEXARB_ENGINE_CIRCUIT_WINDOW")
	setDuration(&cfg.Engine.ExecutionTimeout, "DEXARB_ENGINE_EXECUTION_TIMEOUT")
	setInt(&cfg.Engine.OffloadQueueSize, "DEXARB_ENGINE_OFFLOAD_QUEUE_SIZE")

	// ── Feed ──
	setStr(&cfg.Feed.BaseURL, "DEXARB_FEED_BASE_URL")
	setStr(&cfg.Feed.WsURL, "DEXARB_FEED_WS_URL")
	setStr(&cfg.Feed.ApiKey, "DEXARB_FEED_API_KEY")
	setStr(&cfg.Feed.ApiSecret, "DEXARB_FEED_API_SECRET")
	setStr(&cfg.Feed.ApiPassphrase, "DEXARB_FEED_API_PASSPHRASE")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DEXARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DEXARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DEXARB_WALLET_KEY_PASSWORD")
	setInt(&cfg.Wallet.ChainID, "DEXARB_WALLET_CHAIN_ID")

	// ── Relayer ──
	setStr(&cfg.Relayer.BaseURL, "DEXARB_RELAYER_BASE_URL")
	setFloat64(&cfg.Relayer.SlippagePct, "DEXARB_RELAYER_SLIPPAGE_PCT")
	setDuration(&cfg.Relayer.Deadline, "DEXARB_RELAYER_DEADLINE")

	// ── Funding ──
	setStr(&cfg.Funding.HTTP.Name, "DEXARB_FUNDING_HTTP_NAME")
	setStr(&cfg.Funding.HTTP.BaseURL, "DEXARB_FUNDING_HTTP_BASE_URL")

	// ── Risk ──
	setInt(&cfg.Risk.MinSamples, "DEXARB_RISK_MIN_SAMPLES")
	setDuration(&cfg.Risk.MaxQuoteAge, "DEXARB_RISK_MAX_QUOTE_AGE")
	setFloat64(&cfg.Risk.HighVolatility, "DEXARB_RISK_HIGH_VOLATILITY")
	setFloat64(&cfg.Risk.SuspectProfitPct, "DEXARB_RISK_SUSPECT_PROFIT_PCT")

	// ── RateLimit ──
	setInt(&cfg.RateLimit.MaxRequests, "DEXARB_RATELIMIT_MAX_REQUESTS")
	setDuration(&cfg.RateLimit.Window, "DEXARB_RATELIMIT_WINDOW")

	// ── Cache ──
	setInt(&cfg.Cache.PriceCapacity, "DEXARB_CACHE_PRICE_CAPACITY")
	setDuration(&cfg.Cache.PriceTTL, "DEXARB_CACHE_PRICE_TTL")
	setInt(&cfg.Cache.HistoryCapacity, "DEXARB_CACHE_HISTORY_CAPACITY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DEXARB_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DEXARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXARB_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "DEXARB_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "DEXARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXARB_REDIS_MAX_RETRIES")
	setDuration(&cfg.Redis.DialTimeout, "DEXARB_REDIS_DIAL_TIMEOUT")
	setBool(&cfg.Redis.TLSEnabled, "DEXARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DEXARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DEXARB_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "DEXARB_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "DEXARB_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "DEXARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitRequests, "DEXARB_SERVER_RATE_LIMIT_REQUESTS")
	setDuration(&cfg.Server.RateLimitWindow, "DEXARB_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXARB_MODE")
	setStr(&cfg.LogLevel, "DEXARB_LOG_LEVEL")
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
