package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Feed
	out.Feed = cfg.Feed
	redact(&out.Feed.ApiKey)
	redact(&out.Feed.ApiSecret)
	redact(&out.Feed.ApiPassphrase)

	// Wallet
	out.Wallet = cfg.Wallet
	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.ApiKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Venues != nil {
		out.Venues = make([]VenueConfig, len(cfg.Venues))
		copy(out.Venues, cfg.Venues)
	}
	if cfg.Tokens.Known != nil {
		out.Tokens.Known = make([]TokenConfig, len(cfg.Tokens.Known))
		copy(out.Tokens.Known, cfg.Tokens.Known)
	}
	if cfg.Tokens.Pairs != nil {
		out.Tokens.Pairs = make([]PairConfig, len(cfg.Tokens.Pairs))
		copy(out.Tokens.Pairs, cfg.Tokens.Pairs)
	}
	if cfg.Funding.Pools != nil {
		out.Funding.Pools = make([]FundingPoolConfig, len(cfg.Funding.Pools))
		copy(out.Funding.Pools, cfg.Funding.Pools)
		for i := range out.Funding.Pools {
			if cfg.Funding.Pools[i].Tokens != nil {
				out.Funding.Pools[i].Tokens = make([]string, len(cfg.Funding.Pools[i].Tokens))
				copy(out.Funding.Pools[i].Tokens, cfg.Funding.Pools[i].Tokens)
			}
		}
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
