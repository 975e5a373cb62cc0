// Package config defines the top-level configuration for the dexarb engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEXARB_* environment variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Venues    []VenueConfig   `toml:"venues"`
	Tokens    TokensConfig    `toml:"tokens"`
	Feed      FeedConfig      `toml:"feed"`
	Wallet    WalletConfig    `toml:"wallet"`
	Relayer   RelayerConfig   `toml:"relayer"`
	Funding   FundingConfig   `toml:"funding"`
	Risk      RiskConfig      `toml:"risk"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Cache     CacheConfig     `toml:"cache"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig holds the scan-and-execute parameters owned by the monitoring
// coordinator. Every field here can later be changed at runtime through the
// config API; this section only supplies the boot values.
type EngineConfig struct {
	PollingInterval     duration `toml:"polling_interval"`
	ScanEveryNCycles    int      `toml:"scan_every_n_cycles"`
	MinProfitPercentage float64  `toml:"min_profit_percentage"`
	MaxTradeSize        float64  `toml:"max_trade_size"`
	SlippageTolerance   float64  `toml:"slippage_tolerance"`
	GasPriceStrategy    string   `toml:"gas_price_strategy"`
	GasPriceGwei        float64  `toml:"gas_price_gwei"`
	AssumedGasUnits     int64    `toml:"assumed_gas_units"`
	AutoExecute         bool     `toml:"auto_execute"`
	MinConfidenceScore  float64  `toml:"min_confidence_score"`
	RiskTolerance       string   `toml:"risk_tolerance"`
	Strategy            string   `toml:"strategy"`
	MaxConcurrentTrades int      `toml:"max_concurrent_trades"`

	// Lifecycle bookkeeping for the opportunity manager.
	Retention        duration `toml:"retention"`
	SweepInterval    duration `toml:"sweep_interval"`
	CircuitThreshold int      `toml:"circuit_threshold"`
	CircuitWindow    duration `toml:"circuit_window"`
	ExecutionTimeout duration `toml:"execution_timeout"`

	// OffloadQueueSize bounds the compute offloader's request queue.
	OffloadQueueSize int `toml:"offload_queue_size"`
}

// VenueConfig describes one DEX venue the engine quotes against.
type VenueConfig struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Router string `toml:"router"`
	FeeBps int    `toml:"fee_bps"`
	Active bool   `toml:"active"`
}

// TokensConfig holds the known token table, the reference token used to
// normalise venue price books, and the pairs monitored at boot.
type TokensConfig struct {
	Reference string        `toml:"reference"`
	Known     []TokenConfig `toml:"known"`
	Pairs     []PairConfig  `toml:"pairs"`
}

// TokenConfig describes one ERC-20 token by address and display metadata.
type TokenConfig struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals int    `toml:"decimals"`
}

// PairConfig references two tokens from the known table by symbol.
type PairConfig struct {
	Base  string `toml:"base"`
	Quote string `toml:"quote"`
}

// FeedConfig holds the quote aggregator endpoints and API credentials.
// The three api_* fields must be set together or not at all.
type FeedConfig struct {
	BaseURL       string `toml:"base_url"`
	WsURL         string `toml:"ws_url"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// WalletConfig holds the settlement signing key.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ChainID          int    `toml:"chain_id"`
}

// RelayerConfig holds the settlement relayer endpoint and bundle parameters.
type RelayerConfig struct {
	BaseURL     string   `toml:"base_url"`
	SlippagePct float64  `toml:"slippage_pct"`
	Deadline    duration `toml:"deadline"`
}

// FundingConfig holds the flash-loan provider table.
type FundingConfig struct {
	Pools []FundingPoolConfig `toml:"pools"`
	HTTP  FundingHTTPConfig   `toml:"http"`
}

// FundingPoolConfig describes one static-fee flash-loan pool.
type FundingPoolConfig struct {
	Name   string   `toml:"name"`
	FeePct float64  `toml:"fee_pct"`
	Tokens []string `toml:"tokens"`
}

// FundingHTTPConfig describes an HTTP-backed funding provider. Leave base_url
// empty to disable it.
type FundingHTTPConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
}

// RiskConfig holds the confidence-scoring thresholds.
type RiskConfig struct {
	MinSamples       int      `toml:"min_samples"`
	MaxQuoteAge      duration `toml:"max_quote_age"`
	HighVolatility   float64  `toml:"high_volatility"`
	SuspectProfitPct float64  `toml:"suspect_profit_pct"`
}

// RateLimitConfig bounds outbound quote fetches against the aggregator.
type RateLimitConfig struct {
	MaxRequests int      `toml:"max_requests"`
	Window      duration `toml:"window"`
}

// CacheConfig sizes the in-process price cache and history rings.
type CacheConfig struct {
	PriceCapacity   int      `toml:"price_capacity"`
	PriceTTL        duration `toml:"price_ttl"`
	HistoryCapacity int      `toml:"history_capacity"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	DialTimeout duration `toml:"dial_timeout"`
	TLSEnabled  bool     `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage archival pipeline.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	ApiKey            string   `toml:"api_key"`
	RateLimitRequests int      `toml:"rate_limit_requests"`
	RateLimitWindow   duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
		Engine: EngineConfig{
			PollingInterval:     duration{10 * time.Second},
			ScanEveryNCycles:    3,
			MinProfitPercentage: 0.5,
			MaxTradeSize:        1.0,
			SlippageTolerance:   0.005,
			GasPriceStrategy:    "standard",
			GasPriceGwei:        30,
			AssumedGasUnits:     300_000,
			AutoExecute:         false,
			MinConfidenceScore:  0.6,
			RiskTolerance:       "medium",
			Strategy:            "concurrent",
			MaxConcurrentTrades: 2,
			Retention:           duration{time.Hour},
			SweepInterval:       duration{5 * time.Minute},
			CircuitThreshold:    3,
			CircuitWindow:       duration{10 * time.Minute},
			ExecutionTimeout:    duration{60 * time.Second},
			OffloadQueueSize:    64,
		},
		Tokens: TokensConfig{
			Reference: "WETH",
		},
		Feed: FeedConfig{
			BaseURL: "https://quotes.dexarb.dev",
		},
		Wallet: WalletConfig{
			ChainID: 1,
		},
		Relayer: RelayerConfig{
			SlippagePct: 0.5,
			Deadline:    duration{90 * time.Second},
		},
		Funding: FundingConfig{
			Pools: []FundingPoolConfig{
				{Name: "aave-v3", FeePct: 0.05},
				{Name: "balancer-v2", FeePct: 0},
			},
		},
		Risk: RiskConfig{
			MinSamples:       20,
			MaxQuoteAge:      duration{30 * time.Second},
			HighVolatility:   0.05,
			SuspectProfitPct: 20,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 30,
			Window:      duration{time.Second},
		},
		Cache: CacheConfig{
			PriceCapacity:   512,
			PriceTTL:        duration{30 * time.Second},
			HistoryCapacity: 256,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "dexarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			DialTimeout: duration{5 * time.Second},
			TLSEnabled:  false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRequests: 60,
			RateLimitWindow:   duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "execution_completed", "execution_failed", "circuit_open"},
		},
		Mode:     ModeMonitor,
		LogLevel: "info",
	}
}

// Operating modes accepted by Config.Mode.
const (
	ModeMonitor = "monitor" // detection only, nothing can trade
	ModeTrade   = "trade"   // detection plus settlement execution
	ModeArchive = "archive" // one cold-storage archive cycle, then exit
	ModeFull    = "full"    // trade plus the scheduled archive loop
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeMonitor: true,
	ModeTrade:   true,
	ModeArchive: true,
	ModeFull:    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validGasStrategies enumerates the accepted values for gas_price_strategy.
var validGasStrategies = map[string]bool{
	"standard": true,
	"fast":     true,
	"instant":  true,
}

// validRiskTolerances enumerates the accepted values for risk_tolerance.
var validRiskTolerances = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
}

// validStrategies enumerates the accepted execution scheduling strategies.
var validStrategies = map[string]bool{
	"sequential": true,
	"concurrent": true,
	"priority":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, trade, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	runsEngine := mode == ModeMonitor || mode == ModeTrade || mode == ModeFull
	executes := mode == ModeTrade || mode == ModeFull
	archives := mode == ModeArchive || (mode == ModeFull && c.Archive.Enabled)

	// Engine
	if c.Engine.PollingInterval.Duration <= 0 {
		errs = append(errs, "engine: polling_interval must be > 0")
	}
	if c.Engine.ScanEveryNCycles < 1 {
		errs = append(errs, "engine: scan_every_n_cycles must be >= 1")
	}
	if c.Engine.MinProfitPercentage < 0 {
		errs = append(errs, "engine: min_profit_percentage must be >= 0")
	}
	if c.Engine.MaxTradeSize <= 0 {
		errs = append(errs, "engine: max_trade_size must be > 0")
	}
	if c.Engine.SlippageTolerance < 0 || c.Engine.SlippageTolerance >= 1 {
		errs = append(errs, fmt.Sprintf("engine: slippage_tolerance must be in [0,1), got %v", c.Engine.SlippageTolerance))
	}
	if !validGasStrategies[strings.ToLower(c.Engine.GasPriceStrategy)] {
		errs = append(errs, fmt.Sprintf("engine: unknown gas_price_strategy %q (valid: standard, fast, instant)", c.Engine.GasPriceStrategy))
	}
	if c.Engine.GasPriceGwei <= 0 {
		errs = append(errs, "engine: gas_price_gwei must be > 0")
	}
	if c.Engine.AssumedGasUnits <= 0 {
		errs = append(errs, "engine: assumed_gas_units must be > 0")
	}
	if c.Engine.MinConfidenceScore < 0 || c.Engine.MinConfidenceScore > 1 {
		errs = append(errs, "engine: min_confidence_score must be in [0,1]")
	}
	if !validRiskTolerances[strings.ToLower(c.Engine.RiskTolerance)] {
		errs = append(errs, fmt.Sprintf("engine: unknown risk_tolerance %q (valid: low, medium, high)", c.Engine.RiskTolerance))
	}
	if !validStrategies[strings.ToLower(c.Engine.Strategy)] {
		errs = append(errs, fmt.Sprintf("engine: unknown strategy %q (valid: sequential, concurrent, priority)", c.Engine.Strategy))
	}
	if c.Engine.MaxConcurrentTrades < 1 {
		errs = append(errs, "engine: max_concurrent_trades must be >= 1")
	}
	if c.Engine.OffloadQueueSize < 1 {
		errs = append(errs, "engine: offload_queue_size must be >= 1")
	}

	// Venues: required for any mode that runs the engine.
	if runsEngine && len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured for mode "+mode)
	}
	seenVenues := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: id must not be empty", i))
		} else if seenVenues[v.ID] {
			errs = append(errs, fmt.Sprintf("venues[%d]: duplicate id %q", i, v.ID))
		}
		seenVenues[v.ID] = true
		if v.Router != "" && !common.IsHexAddress(v.Router) {
			errs = append(errs, fmt.Sprintf("venues[%d]: router %q is not a valid address", i, v.Router))
		}
		if v.FeeBps < 0 {
			errs = append(errs, fmt.Sprintf("venues[%d]: fee_bps must be >= 0", i))
		}
	}

	// Tokens: the pair table references the known table by symbol.
	knownSymbols := make(map[string]bool, len(c.Tokens.Known))
	for i, t := range c.Tokens.Known {
		if !common.IsHexAddress(t.Address) {
			errs = append(errs, fmt.Sprintf("tokens.known[%d]: address %q is not a valid address", i, t.Address))
		}
		if t.Symbol == "" {
			errs = append(errs, fmt.Sprintf("tokens.known[%d]: symbol must not be empty", i))
		} else if knownSymbols[t.Symbol] {
			errs = append(errs, fmt.Sprintf("tokens.known[%d]: duplicate symbol %q", i, t.Symbol))
		}
		knownSymbols[t.Symbol] = true
		if t.Decimals < 0 || t.Decimals > 255 {
			errs = append(errs, fmt.Sprintf("tokens.known[%d]: decimals must be 0-255, got %d", i, t.Decimals))
		}
	}
	if runsEngine {
		if len(c.Tokens.Known) == 0 {
			errs = append(errs, "tokens: at least one known token must be configured for mode "+mode)
		}
		if c.Tokens.Reference == "" {
			errs = append(errs, "tokens: reference symbol must not be empty")
		} else if len(knownSymbols) > 0 && !knownSymbols[c.Tokens.Reference] {
			errs = append(errs, fmt.Sprintf("tokens: reference %q is not in the known token table", c.Tokens.Reference))
		}
	}
	for i, p := range c.Tokens.Pairs {
		if p.Base == "" || p.Quote == "" {
			errs = append(errs, fmt.Sprintf("tokens.pairs[%d]: base and quote must not be empty", i))
			continue
		}
		if p.Base == p.Quote {
			errs = append(errs, fmt.Sprintf("tokens.pairs[%d]: base and quote must differ", i))
		}
		if len(knownSymbols) > 0 {
			if !knownSymbols[p.Base] {
				errs = append(errs, fmt.Sprintf("tokens.pairs[%d]: base %q is not in the known token table", i, p.Base))
			}
			if !knownSymbols[p.Quote] {
				errs = append(errs, fmt.Sprintf("tokens.pairs[%d]: quote %q is not in the known token table", i, p.Quote))
			}
		}
	}

	// Feed: required for any mode that runs the engine. The three api_*
	// fields must be set together, or all empty.
	if runsEngine && c.Feed.BaseURL == "" {
		errs = append(errs, "feed: base_url must not be empty for mode "+mode)
	}
	fk := c.Feed.ApiKey != ""
	fs := c.Feed.ApiSecret != ""
	fp := c.Feed.ApiPassphrase != ""
	if fk || fs || fp {
		if !(fk && fs && fp) {
			errs = append(errs, "feed: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Wallet: at least one credential source must be specified for modes
	// that execute.
	if executes {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Wallet.ChainID <= 0 {
			errs = append(errs, "wallet: chain_id must be positive")
		}
		if c.Relayer.BaseURL == "" {
			errs = append(errs, "relayer: base_url must not be empty for mode "+mode)
		}
	}

	// Funding
	seenPools := make(map[string]bool, len(c.Funding.Pools))
	for i, p := range c.Funding.Pools {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("funding.pools[%d]: name must not be empty", i))
		} else if seenPools[p.Name] {
			errs = append(errs, fmt.Sprintf("funding.pools[%d]: duplicate name %q", i, p.Name))
		}
		seenPools[p.Name] = true
		if p.FeePct < 0 {
			errs = append(errs, fmt.Sprintf("funding.pools[%d]: fee_pct must be >= 0", i))
		}
		for j, addr := range p.Tokens {
			if !common.IsHexAddress(addr) {
				errs = append(errs, fmt.Sprintf("funding.pools[%d].tokens[%d]: %q is not a valid address", i, j, addr))
			}
		}
	}
	if c.Funding.HTTP.BaseURL != "" && c.Funding.HTTP.Name == "" {
		errs = append(errs, "funding.http: name must not be empty when base_url is set")
	}

	// Risk
	if c.Risk.MinSamples < 1 {
		errs = append(errs, "risk: min_samples must be >= 1")
	}
	if c.Risk.MaxQuoteAge.Duration <= 0 {
		errs = append(errs, "risk: max_quote_age must be > 0")
	}
	if c.Risk.HighVolatility <= 0 {
		errs = append(errs, "risk: high_volatility must be > 0")
	}
	if c.Risk.SuspectProfitPct <= 0 {
		errs = append(errs, "risk: suspect_profit_pct must be > 0")
	}

	// RateLimit
	if c.RateLimit.MaxRequests < 1 {
		errs = append(errs, "ratelimit: max_requests must be >= 1")
	}
	if c.RateLimit.Window.Duration <= 0 {
		errs = append(errs, "ratelimit: window must be > 0")
	}

	// Cache
	if c.Cache.PriceCapacity < 1 {
		errs = append(errs, "cache: price_capacity must be >= 1")
	}
	if c.Cache.PriceTTL.Duration <= 0 {
		errs = append(errs, "cache: price_ttl must be > 0")
	}
	if c.Cache.HistoryCapacity < 1 {
		errs = append(errs, "cache: history_capacity must be >= 1")
	}

	// Postgres: only the modes that persist history require it.
	if executes || archives {
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3: only needed when the archival pipeline runs. An empty endpoint
	// means AWS S3 proper; empty credentials defer to the AWS default chain.
	if archives {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if mode == ModeFull && c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitRequests < 1 {
			errs = append(errs, "server: rate_limit_requests must be >= 1")
		}
		if c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
