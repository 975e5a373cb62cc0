package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/quantrend/dexarb/internal/config"
	"github.com/quantrend/dexarb/internal/crypto"
	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/events"
	"github.com/quantrend/dexarb/internal/feed"
	"github.com/quantrend/dexarb/internal/funding"
	"github.com/quantrend/dexarb/internal/monitor"
	"github.com/quantrend/dexarb/internal/opportunity"
	"github.com/quantrend/dexarb/internal/pipeline"
	"github.com/quantrend/dexarb/internal/pricing"
	"github.com/quantrend/dexarb/internal/ratelimit"
	"github.com/quantrend/dexarb/internal/risk"
	"github.com/quantrend/dexarb/internal/server"
	"github.com/quantrend/dexarb/internal/server/handler"
	"github.com/quantrend/dexarb/internal/server/ws"
	"github.com/quantrend/dexarb/internal/settlement"
	"github.com/quantrend/dexarb/internal/worker"
)

// engine bundles the long-lived components of the scan-and-execute core.
type engine struct {
	offloader   *worker.Offloader
	manager     *opportunity.Manager
	coordinator *monitor.Coordinator
	wsFeed      *feed.WSFeed // nil unless feed.ws_url is configured
	tokens      map[string]domain.Token
}

// modeOptions carries the per-mode differences into the shared runner.
type modeOptions struct {
	name     string
	archiver *pipeline.Archiver // non-nil enables the scheduled archive loop
}

// MonitorMode runs detection only: quotes are polled, spreads scanned, and
// opportunities surfaced over the API and event stream. No settlement
// executor and no persistence are wired, so nothing can trade.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.buildEngine(deps, false)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, eng, modeOptions{name: config.ModeMonitor})
}

// TradeMode runs the full detect-and-execute engine with persistence and
// distributed execution locking.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.buildEngine(deps, true)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, eng, modeOptions{name: config.ModeTrade})
}

// ArchiveMode runs one cold-storage archive cycle and exits. Meant for cron
// or operator invocation against a database written by trade or full mode.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	arch, err := a.pipelineArchiver(deps)
	if err != nil {
		return err
	}
	result, err := arch.Run(ctx)
	if err != nil {
		return fmt.Errorf("app: archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive cycle complete",
		slog.Int64("opportunities_archived", result.OpportunitiesArchived),
		slog.Int64("executions_archived", result.ExecutionsArchived),
		slog.Int64("opportunities_pruned", result.OpportunitiesPruned),
		slog.Int64("executions_pruned", result.ExecutionsPruned),
		slog.Int64("duration_ms", result.DurationMs))
	return nil
}

// FullMode runs trade mode plus, when archive.enabled is set, the scheduled
// archive pipeline.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.buildEngine(deps, true)
	if err != nil {
		return err
	}
	opts := modeOptions{name: config.ModeFull}
	if a.cfg.Archive.Enabled {
		arch, err := a.pipelineArchiver(deps)
		if err != nil {
			return err
		}
		opts.archiver = arch
	}
	return a.runEngine(ctx, deps, eng, opts)
}

// buildEngine constructs the scan core: rate limiter, caches, offloader,
// publisher, risk scorer, funding, optional settlement, the opportunity
// manager, and the monitoring coordinator. execute controls whether a
// settlement executor is built; without one the manager refuses to trade.
func (a *App) buildEngine(deps *Dependencies, execute bool) (*engine, error) {
	cfg := a.cfg
	venues := venuesFromConfig(cfg.Venues)
	tokens, reference, err := tokenTable(cfg.Tokens)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Duration)
	cache := pricing.NewPriceCache(cfg.Cache.PriceCapacity, cfg.Cache.PriceTTL.Duration)
	history := pricing.NewHistorySet(cfg.Cache.HistoryCapacity)
	offloader := worker.New(a.base, cfg.Engine.OffloadQueueSize)

	publisher := events.NewPublisher(a.base)
	publisher.SetBus(deps.EventBus)
	if deps.Notifier != nil {
		publisher.SetNotifier(deps.Notifier)
	}

	scorer := risk.NewScorer(history, risk.Config{
		MinSamples:       cfg.Risk.MinSamples,
		MaxQuoteAge:      cfg.Risk.MaxQuoteAge.Duration,
		HighVolatility:   cfg.Risk.HighVolatility,
		SuspectProfitPct: cfg.Risk.SuspectProfitPct,
	}, a.base)

	providers := make([]domain.FundingProvider, 0, len(cfg.Funding.Pools)+1)
	for _, p := range cfg.Funding.Pools {
		addrs := make([]common.Address, 0, len(p.Tokens))
		for _, raw := range p.Tokens {
			addrs = append(addrs, common.HexToAddress(raw))
		}
		providers = append(providers, funding.NewPool(p.Name, p.FeePct, addrs))
	}
	if cfg.Funding.HTTP.BaseURL != "" {
		providers = append(providers, funding.NewHTTPProvider(cfg.Funding.HTTP.Name, cfg.Funding.HTTP.BaseURL))
	}
	selector := funding.NewSelector(a.base, providers...)

	var executor domain.SettlementExecutor
	if execute {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("app: load settlement key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex, cfg.Wallet.ChainID)
		if err != nil {
			return nil, fmt.Errorf("app: settlement signer: %w", err)
		}
		relayer := settlement.NewRelayer(a.base, cfg.Relayer.BaseURL, signer, venues, settlement.Options{
			SlippagePct: cfg.Relayer.SlippagePct,
			Deadline:    cfg.Relayer.Deadline.Duration,
		})
		if auth := a.hmacAuth(); auth != nil {
			relayer.SetAuth(auth)
		}
		executor = relayer
	}

	manager := opportunity.NewManager(a.base, selector, executor, opportunity.Options{
		Retention:        cfg.Engine.Retention.Duration,
		SweepInterval:    cfg.Engine.SweepInterval.Duration,
		CircuitThreshold: cfg.Engine.CircuitThreshold,
		CircuitWindow:    cfg.Engine.CircuitWindow.Duration,
		ExecTimeout:      cfg.Engine.ExecutionTimeout.Duration,
	})
	manager.SetRiskScorer(scorer)
	manager.SetPublisher(publisher)
	if deps.OpportunityStore != nil {
		manager.SetStores(deps.OpportunityStore, deps.ExecutionStore)
	}
	if deps.LockManager != nil {
		manager.SetLockManager(deps.LockManager)
	}

	source := feed.NewClient(a.base, cfg.Feed.BaseURL)
	if auth := a.hmacAuth(); auth != nil {
		source.SetAuth(auth)
	}

	coordinator := monitor.New(a.base, engineConfigFromBoot(cfg.Engine), venues, reference,
		limiter, source, offloader, manager, cache, history)
	coordinator.SetQuoteMirror(deps.QuoteMirror)
	coordinator.SetPublisher(publisher)

	var wsFeed *feed.WSFeed
	if cfg.Feed.WsURL != "" {
		wsFeed = feed.NewWSFeed(a.base, cfg.Feed.WsURL)
		coordinator.SetPushFeed(wsFeed)
	}

	for _, p := range cfg.Tokens.Pairs {
		base, quote := tokens[strings.ToUpper(p.Base)], tokens[strings.ToUpper(p.Quote)]
		coordinator.AddPair(base, quote)
	}

	return &engine{
		offloader:   offloader,
		manager:     manager,
		coordinator: coordinator,
		wsFeed:      wsFeed,
		tokens:      tokens,
	}, nil
}

// runEngine starts the engine's goroutines plus, when enabled, the HTTP/WS
// server and the archive loop, and blocks until ctx is cancelled or a
// component fails.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, eng *engine, opts modeOptions) error {
	started := time.Now().UTC()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return eng.offloader.Run(ctx) })
	g.Go(func() error { return eng.manager.Run(ctx) })
	g.Go(func() error { return eng.coordinator.Run(ctx) })

	if eng.wsFeed != nil {
		if err := eng.wsFeed.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "push feed unavailable, continuing with polling only",
				slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, func() { eng.wsFeed.Close() })
		}
	}

	if err := eng.coordinator.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("app: start monitoring: %w", err)
	}

	if opts.archiver != nil {
		interval := a.cfg.Archive.Interval.Duration
		g.Go(func() error { return opts.archiver.RunLoop(ctx, interval) })
	}

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.EventBus, a.base, ws.Config{Mode: opts.name, StartedAt: started})
		g.Go(func() error { return hub.Run(ctx) })

		srv := a.buildServer(deps, eng, hub, opts, started)
		g.Go(func() error { return srv.Start() })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.logger.InfoContext(ctx, "engine running", slog.String("mode", opts.name))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: %s mode: %w", opts.name, err)
	}
	return nil
}

// buildServer assembles the handler set for the running mode. Store-backed
// handlers attach only when the mode wired persistence, and the archive
// trigger only when the pipeline runs.
func (a *App) buildServer(deps *Dependencies, eng *engine, hub *ws.Hub, opts modeOptions, started time.Time) *server.Server {
	h := server.Handlers{
		Health:   handler.NewHealthHandler(a.base, started),
		Status:   handler.NewStatusHandler(opts.name, eng.coordinator, eng.manager),
		Monitor:  handler.NewMonitorHandler(eng.coordinator, a.base),
		Pairs:    handler.NewPairsHandler(eng.coordinator, eng.tokens, a.base),
		Config:   handler.NewConfigHandler(eng.coordinator, a.base),
		Analysis: handler.NewAnalysisHandler(eng.coordinator, a.base),
		Events:   handler.NewEventsHandler(deps.EventBus, a.base),
	}

	opp := handler.NewOpportunityHandler(eng.manager, a.base)
	if deps.OpportunityStore != nil {
		opp = opp.WithHistory(deps.OpportunityStore)
	}
	if deps.ExecutionStore != nil {
		opp = opp.WithExecutions(deps.ExecutionStore)
	}
	h.Opportunity = opp

	if opts.archiver != nil {
		h.Archive = handler.NewArchiveHandler(opts.archiver, deps.BlobReader, a.base)
	}
	if deps.AuditStore != nil {
		h.Audit = handler.NewAuditHandler(deps.AuditStore, a.base)
	}

	return server.New(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.ApiKey,
		RateLimitRequests: a.cfg.Server.RateLimitRequests,
		RateLimitWindow:   a.cfg.Server.RateLimitWindow.Duration,
	}, h, hub, deps.KeyedLimiter, deps.AuditStore, a.base)
}

// pipelineArchiver builds the archive orchestrator from the wired blob
// archiver and pruning stores.
func (a *App) pipelineArchiver(deps *Dependencies) (*pipeline.Archiver, error) {
	if deps.Archiver == nil || deps.OpportunityStore == nil || deps.ExecutionStore == nil {
		return nil, errors.New("app: archive pipeline requires postgres and object storage")
	}
	return pipeline.NewArchiver(deps.Archiver, deps.OpportunityStore, deps.ExecutionStore,
		a.cfg.Archive.RetentionDays, a.base), nil
}

// hmacAuth returns the aggregator API credentials, or nil when unset. The
// same platform credential signs quote-feed and relayer requests.
func (a *App) hmacAuth() *crypto.HMACAuth {
	f := a.cfg.Feed
	if f.ApiKey == "" {
		return nil
	}
	return &crypto.HMACAuth{Key: f.ApiKey, Secret: f.ApiSecret, Passphrase: f.ApiPassphrase}
}

// engineConfigFromBoot converts the TOML boot section into the runtime
// engine configuration. Enumerated fields are lowercased; Validate has
// already vetted their values.
func engineConfigFromBoot(cfg config.EngineConfig) domain.EngineConfig {
	return domain.EngineConfig{
		PollingInterval:     cfg.PollingInterval.Duration,
		ScanEveryNCycles:    cfg.ScanEveryNCycles,
		MinProfitPercentage: cfg.MinProfitPercentage,
		MaxTradeSize:        cfg.MaxTradeSize,
		SlippageTolerance:   cfg.SlippageTolerance,
		GasPriceStrategy:    strings.ToLower(cfg.GasPriceStrategy),
		GasPriceGwei:        cfg.GasPriceGwei,
		AssumedGasUnits:     uint64(cfg.AssumedGasUnits),
		AutoExecute:         cfg.AutoExecute,
		MinConfidenceScore:  cfg.MinConfidenceScore,
		RiskTolerance:       domain.RiskLevel(strings.ToLower(cfg.RiskTolerance)),
		Strategy:            domain.ExecutionStrategy(strings.ToLower(cfg.Strategy)),
		MaxConcurrentTrades: cfg.MaxConcurrentTrades,
	}
}

// venuesFromConfig converts the venue table. Inactive venues are kept: the
// coordinator filters on Active itself, and SetVenues can re-activate them
// without a restart.
func venuesFromConfig(vcs []config.VenueConfig) []domain.Venue {
	out := make([]domain.Venue, 0, len(vcs))
	for _, v := range vcs {
		out = append(out, domain.Venue{
			ID:     v.ID,
			Name:   v.Name,
			Router: common.HexToAddress(v.Router),
			FeeBps: float64(v.FeeBps),
			Active: v.Active,
		})
	}
	return out
}

// tokenTable builds the symbol-keyed token map and resolves the reference
// token that denominates every venue price book.
func tokenTable(cfg config.TokensConfig) (map[string]domain.Token, domain.Token, error) {
	table := make(map[string]domain.Token, len(cfg.Known))
	for _, t := range cfg.Known {
		table[strings.ToUpper(t.Symbol)] = domain.Token{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: uint8(t.Decimals),
		}
	}
	ref, ok := table[strings.ToUpper(cfg.Reference)]
	if !ok {
		return nil, domain.Token{}, fmt.Errorf("app: reference token %q is not in the known token table", cfg.Reference)
	}
	return table, ref, nil
}
