// Package monitor drives the engine: a polling loop fetches rate-limited
// quotes per (pair, venue) into the cache and history rings, every K cycles
// it hands a scan to the compute offloader, and scan results flow into the
// opportunity manager. The coordinator owns the monitored-pair set, the
// engine configuration, and the stopped/running lifecycle.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/pricing"
	"github.com/quantrend/dexarb/internal/scanner"
	"github.com/quantrend/dexarb/internal/worker"
)

const (
	defaultPollingInterval  = 10 * time.Second
	defaultScanEveryNCycles = 3
)

// ScanOffloader is the message-passing boundary to the compute worker.
type ScanOffloader interface {
	Submit(req worker.Request) error
	Responses() <-chan worker.Response
}

// OpportunitySink receives scan candidates and answers pending-set queries.
// Implemented by the opportunity manager.
type OpportunitySink interface {
	Ingest(ctx context.Context, candidates []domain.ArbitrageOpportunity) int
	Pending() []domain.ArbitrageOpportunity
	PendingCount() int
	SetConfig(cfg domain.EngineConfig)
}

// Publisher fans engine events out to the bus, WebSocket clients, and
// notifiers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// PushFeed is an optional push-based quote subscription. Updates arrive on
// Updates and are folded into the same cache, history, and price book as
// polled quotes.
type PushFeed interface {
	Subscribe(pair domain.TokenPair) error
	Unsubscribe(pair domain.TokenPair) error
	Updates() <-chan domain.QuoteUpdate
}

// Coordinator owns the monitoring lifecycle. All accessors return copies;
// internal state is mutated only through the coordinator's own methods.
type Coordinator struct {
	logger    *slog.Logger
	limiter   domain.RateLimiter
	source    domain.QuoteSource
	offloader ScanOffloader
	sink      OpportunitySink
	cache     *pricing.PriceCache
	history   *pricing.HistorySet
	reference domain.Token

	mirror domain.QuoteMirror
	events Publisher
	feed   PushFeed

	mu         sync.Mutex
	cfg        domain.EngineConfig
	venues     []domain.Venue
	pairs      map[string]domain.TokenPair
	book       map[string]map[string]float64 // venue id -> token (lowercase hex) -> price in reference units
	running    bool
	epoch      uint64
	cycles     uint64
	lastScanAt time.Time
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	restart chan struct{}
	waiters map[string]chan worker.Response
}

// New creates a Coordinator. The reference token denominates the per-venue
// price book: only pairs quoting against it contribute to scans, which is
// how cross-venue ratios stay comparable. Mirroring, event publication, and
// push feeds are optional and attached via setters before Run.
func New(
	logger *slog.Logger,
	cfg domain.EngineConfig,
	venues []domain.Venue,
	reference domain.Token,
	limiter domain.RateLimiter,
	source domain.QuoteSource,
	offloader ScanOffloader,
	sink OpportunitySink,
	cache *pricing.PriceCache,
	history *pricing.HistorySet,
) *Coordinator {
	c := &Coordinator{
		logger:    logger.With(slog.String("component", "monitor")),
		limiter:   limiter,
		source:    source,
		offloader: offloader,
		sink:      sink,
		cache:     cache,
		history:   history,
		reference: reference,
		cfg:       cfg,
		venues:    append([]domain.Venue(nil), venues...),
		pairs:     make(map[string]domain.TokenPair),
		book:      make(map[string]map[string]float64),
		restart:   make(chan struct{}, 1),
		waiters:   make(map[string]chan worker.Response),
	}
	sink.SetConfig(cfg)
	return c
}

// SetQuoteMirror attaches shared quote mirroring.
func (c *Coordinator) SetQuoteMirror(m domain.QuoteMirror) { c.mirror = m }

// SetPublisher attaches event publication.
func (c *Coordinator) SetPublisher(p Publisher) { c.events = p }

// SetPushFeed attaches a push-based quote subscription.
func (c *Coordinator) SetPushFeed(f PushFeed) { c.feed = f }

// SetVenues replaces the venue set. Takes effect on the next cycle.
func (c *Coordinator) SetVenues(venues []domain.Venue) {
	c.mu.Lock()
	c.venues = append([]domain.Venue(nil), venues...)
	c.mu.Unlock()
}

// Run pumps offloader responses and push-feed updates until ctx is done.
// It must be running for scans and interactive analysis to complete; the
// polling loop itself is controlled separately by Start and Stop. When ctx
// ends, Run stops the polling loop before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("monitor pump started")
	defer c.logger.Info("monitor pump stopped")

	var updates <-chan domain.QuoteUpdate
	if c.feed != nil {
		updates = c.feed.Updates()
	}

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case resp := <-c.offloader.Responses():
			c.handleResponse(ctx, resp)
		case u := <-updates:
			c.applyQuote(ctx, u.VenueID, u.Pair, u.Point)
		}
	}
}

// Start begins polling. It fails with ErrNoActiveVenues when every venue is
// inactive and is a no-op when already running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "monitor already running")
		return nil
	}
	active := domain.ActiveVenues(c.venues)
	if len(active) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("monitor: start: %w", domain.ErrNoActiveVenues)
	}
	if c.cfg.PollingInterval <= 0 {
		c.cfg.PollingInterval = defaultPollingInterval
	}
	if c.cfg.ScanEveryNCycles < 1 {
		c.cfg.ScanEveryNCycles = defaultScanEveryNCycles
	}
	c.epoch++
	c.running = true
	// The loop outlives the caller's request context; Stop or the pump's
	// shutdown path cancels it.
	loopCtx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	done := make(chan struct{})
	c.loopDone = done
	interval := c.cfg.PollingInterval
	pairCount := len(c.pairs)
	c.mu.Unlock()

	c.subscribeAll(ctx)
	go c.loop(loopCtx, done)

	c.logger.InfoContext(ctx, "monitoring started",
		slog.Duration("polling_interval", interval),
		slog.Int("pairs", pairCount),
		slog.Int("active_venues", len(active)))
	c.publish(ctx, domain.Event{Type: domain.EventMonitorStarted})
	return nil
}

// Stop cancels the polling loop and bumps the epoch so in-flight offloaded
// scans are discarded on arrival. Stopping an already stopped coordinator
// is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.epoch++
	cancel := c.loopCancel
	done := c.loopDone
	c.loopCancel = nil
	c.mu.Unlock()

	cancel()
	<-done

	c.unsubscribeAll()
	c.logger.Info("monitoring stopped")
	c.publish(context.Background(), domain.Event{Type: domain.EventMonitorStopped})
}

// IsRunning reports whether the polling loop is active.
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.restart:
			ticker.Reset(c.interval())
			c.logger.Debug("polling ticker restarted", slog.Duration("interval", c.interval()))
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

func (c *Coordinator) interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.PollingInterval <= 0 {
		return defaultPollingInterval
	}
	return c.cfg.PollingInterval
}

// cycle fetches one quote per (pair, active venue) behind the rate limiter
// and submits a scan every K cycles.
func (c *Coordinator) cycle(ctx context.Context) {
	c.mu.Lock()
	cfg := c.cfg
	venues := append([]domain.Venue(nil), c.venues...)
	pairs := make([]domain.TokenPair, 0, len(c.pairs))
	for _, p := range c.pairs {
		pairs = append(pairs, p)
	}
	c.cycles++
	cycle := c.cycles
	c.mu.Unlock()

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key() < pairs[j].Key() })

	fetched, deferred := 0, 0
	for _, venue := range venues {
		if !venue.Active {
			continue
		}
		for _, pair := range pairs {
			if ctx.Err() != nil {
				return
			}
			if !c.limiter.TryAcquire() {
				deferred++
				continue
			}
			point, err := c.source.FetchQuote(ctx, venue, pair)
			if err != nil {
				if errors.Is(err, domain.ErrTransientFetch) {
					c.logger.WarnContext(ctx, "quote fetch failed, retrying next tick",
						slog.String("venue", venue.ID),
						slog.String("pair", pair.String()),
						slog.String("error", err.Error()))
				} else {
					c.logger.ErrorContext(ctx, "quote fetch failed",
						slog.String("venue", venue.ID),
						slog.String("pair", pair.String()),
						slog.String("error", err.Error()))
				}
				continue
			}
			c.applyQuote(ctx, venue.ID, pair, point)
			fetched++
		}
	}
	if deferred > 0 {
		c.logger.DebugContext(ctx, "fetches deferred by rate limit",
			slog.Int("deferred", deferred),
			slog.Int("fetched", fetched))
	}

	scanEvery := cfg.ScanEveryNCycles
	if scanEvery < 1 {
		scanEvery = 1
	}
	if cycle%uint64(scanEvery) == 0 {
		c.submitScan(ctx, cfg)
	}
}

// applyQuote folds one quote into the cache, history ring, price book, and
// optional mirror, then announces the tick.
func (c *Coordinator) applyQuote(ctx context.Context, venueID string, pair domain.TokenPair, point domain.PricePoint) {
	if point.VenueID == "" {
		point.VenueID = venueID
	}
	key := pair.Key()
	c.cache.Put(pricing.CacheKey(venueID, key), point)
	c.history.Push(key, point)
	c.updateBook(venueID, pair, point.Price)

	if c.mirror != nil {
		if err := c.mirror.SetQuote(ctx, venueID, key, point); err != nil {
			c.logger.DebugContext(ctx, "quote mirror write failed",
				slog.String("error", err.Error()))
		}
	}
	c.publish(ctx, domain.Event{
		Type:   domain.EventPriceTick,
		Detail: map[string]any{"venue": venueID, "pair": pair.String(), "price": point.Price},
	})
}

// updateBook folds a pair quote into the per-venue token price book. Book
// prices are denominated in the reference token, so only pairs with the
// reference on one side contribute; the scanner derives cross ratios from
// the book itself.
func (c *Coordinator) updateBook(venueID string, pair domain.TokenPair, price float64) {
	if price <= 0 {
		return
	}
	ref := strings.ToLower(c.reference.Address.Hex())
	base := strings.ToLower(pair.Base.Address.Hex())
	quote := strings.ToLower(pair.Quote.Address.Hex())

	var token string
	var tokenPrice float64
	switch {
	case quote == ref:
		token, tokenPrice = base, price
	case base == ref:
		token, tokenPrice = quote, 1/price
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	book := c.book[venueID]
	if book == nil {
		book = make(map[string]float64)
		c.book[venueID] = book
	}
	book[token] = tokenPrice
	book[ref] = 1
}

// submitScan snapshots the price book into a self-contained scan request.
// Tokens are sorted so identical market states serialize identically and
// hit the offloader's result cache.
func (c *Coordinator) submitScan(ctx context.Context, cfg domain.EngineConfig) {
	c.mu.Lock()
	epoch := c.epoch
	tokens := make(map[string]domain.Token, 2*len(c.pairs))
	for _, p := range c.pairs {
		tokens[strings.ToLower(p.Base.Address.Hex())] = p.Base
		tokens[strings.ToLower(p.Quote.Address.Hex())] = p.Quote
	}
	if len(tokens) > 0 {
		tokens[strings.ToLower(c.reference.Address.Hex())] = c.reference
	}
	venuePrices := make([]domain.VenuePrices, 0, len(c.book))
	for _, v := range c.venues {
		if !v.Active {
			continue
		}
		book := c.book[v.ID]
		if len(book) == 0 {
			continue
		}
		prices := make(map[string]float64, len(book))
		for token, p := range book {
			prices[token] = p
		}
		venuePrices = append(venuePrices, domain.VenuePrices{VenueID: v.ID, Prices: prices})
	}
	c.mu.Unlock()

	if len(venuePrices) < 2 || len(tokens) < 2 {
		c.logger.DebugContext(ctx, "scan skipped, not enough quoted venues",
			slog.Int("venues", len(venuePrices)),
			slog.Int("tokens", len(tokens)))
		return
	}

	tokenList := make([]domain.Token, 0, len(tokens))
	for _, t := range tokens {
		tokenList = append(tokenList, t)
	}
	sort.Slice(tokenList, func(i, j int) bool {
		return strings.ToLower(tokenList[i].Address.Hex()) < strings.ToLower(tokenList[j].Address.Hex())
	})

	input := scanner.Input{
		Tokens: tokenList,
		Venues: venuePrices,
		Params: scanner.Params{
			MinProfitPercentage: cfg.MinProfitPercentage,
			TradeSize:           cfg.MaxTradeSize,
			GasPriceGwei:        cfg.GasPriceGwei,
			AssumedGasUnits:     cfg.AssumedGasUnits,
		},
	}
	req, err := worker.NewRequest(worker.KindScan, epoch, input)
	if err != nil {
		c.logger.ErrorContext(ctx, "scan request build failed", slog.String("error", err.Error()))
		return
	}
	if err := c.offloader.Submit(req); err != nil {
		// A busy offloader defers the scan; the next eligible cycle retries.
		c.logger.WarnContext(ctx, "scan deferred", slog.String("error", err.Error()))
		return
	}
	c.logger.DebugContext(ctx, "scan submitted",
		slog.String("request_id", req.ID),
		slog.Uint64("epoch", epoch))
}

// handleResponse routes one offloader response: to its waiter for
// interactive analysis calls, into the opportunity sink for scans of the
// current epoch, and to the floor for anything stale.
func (c *Coordinator) handleResponse(ctx context.Context, resp worker.Response) {
	c.mu.Lock()
	waiter, waited := c.waiters[resp.ID]
	if waited {
		delete(c.waiters, resp.ID)
	}
	epoch := c.epoch
	running := c.running
	c.mu.Unlock()

	if waited {
		waiter <- resp
		return
	}

	if !running || resp.Epoch != epoch {
		c.logger.DebugContext(ctx, "stale offload response discarded",
			slog.String("request_id", resp.ID),
			slog.Uint64("response_epoch", resp.Epoch),
			slog.Uint64("current_epoch", epoch),
			slog.String("reason", domain.ErrStaleResponse.Error()))
		return
	}
	if resp.Err != "" {
		c.logger.WarnContext(ctx, "offloaded computation failed",
			slog.String("request_id", resp.ID),
			slog.String("error", resp.Err))
		return
	}

	switch resp.Kind {
	case worker.KindScan:
		var candidates []domain.ArbitrageOpportunity
		if err := json.Unmarshal(resp.Result, &candidates); err != nil {
			c.logger.ErrorContext(ctx, "scan result decode failed", slog.String("error", err.Error()))
			return
		}
		c.mu.Lock()
		c.lastScanAt = time.Now().UTC()
		c.mu.Unlock()
		created := c.sink.Ingest(ctx, candidates)
		if len(candidates) > 0 {
			c.logger.InfoContext(ctx, "scan completed",
				slog.Int("candidates", len(candidates)),
				slog.Int("new", created))
		} else {
			c.logger.DebugContext(ctx, "scan completed, no candidates")
		}
	default:
		c.logger.DebugContext(ctx, "unexpected offload response kind",
			slog.String("kind", string(resp.Kind)))
	}
}

// Volatility computes average and volatility for a monitored pair's recent
// history on the offloader. Requires the pump (Run) to be active.
func (c *Coordinator) Volatility(ctx context.Context, pairKey string) (worker.VolatilityResult, error) {
	points := c.history.Recent(pairKey, c.history.Capacity())
	if len(points) == 0 {
		return worker.VolatilityResult{}, fmt.Errorf("monitor: pair %s has no history: %w", pairKey, domain.ErrNotFound)
	}
	raw, err := c.offload(ctx, worker.KindVolatility, worker.VolatilityPayload{PairKey: pairKey, Points: points})
	if err != nil {
		return worker.VolatilityResult{}, err
	}
	var out worker.VolatilityResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return worker.VolatilityResult{}, fmt.Errorf("monitor: decode volatility result: %w", err)
	}
	return out, nil
}

// Candles buckets a monitored pair's recent history into OHLC candles on
// the offloader. Requires the pump (Run) to be active.
func (c *Coordinator) Candles(ctx context.Context, pairKey string, bucket time.Duration) (worker.CandleifyResult, error) {
	points := c.history.Recent(pairKey, c.history.Capacity())
	if len(points) == 0 {
		return worker.CandleifyResult{}, fmt.Errorf("monitor: pair %s has no history: %w", pairKey, domain.ErrNotFound)
	}
	raw, err := c.offload(ctx, worker.KindCandleify, worker.CandleifyPayload{PairKey: pairKey, Points: points, Bucket: bucket})
	if err != nil {
		return worker.CandleifyResult{}, err
	}
	var out worker.CandleifyResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return worker.CandleifyResult{}, fmt.Errorf("monitor: decode candle result: %w", err)
	}
	return out, nil
}

// offload submits one correlated request and waits for its response or ctx.
func (c *Coordinator) offload(ctx context.Context, kind worker.Kind, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	req, err := worker.NewRequest(kind, epoch, payload)
	if err != nil {
		return nil, fmt.Errorf("monitor: build %s request: %w", kind, err)
	}

	ch := make(chan worker.Response, 1)
	c.mu.Lock()
	c.waiters[req.ID] = ch
	c.mu.Unlock()

	if err := c.offloader.Submit(req); err != nil {
		c.mu.Lock()
		delete(c.waiters, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("monitor: submit %s request: %w", kind, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, req.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Err != "" {
			return nil, fmt.Errorf("monitor: %s computation: %s", kind, resp.Err)
		}
		return resp.Result, nil
	}
}

// AddPair starts monitoring the canonical pair of a and b. Adding a pair
// that is already monitored returns false.
func (c *Coordinator) AddPair(a, b domain.Token) bool {
	pair := domain.NewTokenPair(a, b)
	key := pair.Key()

	c.mu.Lock()
	if _, exists := c.pairs[key]; exists {
		c.mu.Unlock()
		return false
	}
	c.pairs[key] = pair
	running := c.running
	c.mu.Unlock()

	if running && c.feed != nil {
		if err := c.feed.Subscribe(pair); err != nil {
			c.logger.Warn("pair subscription failed",
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()))
		}
	}
	c.logger.Info("pair added", slog.String("pair", pair.String()))
	return true
}

// RemovePair stops monitoring the pair and drops its history ring. Removing
// an unmonitored pair returns false.
func (c *Coordinator) RemovePair(a, b domain.Token) bool {
	pair := domain.NewTokenPair(a, b)
	key := pair.Key()

	c.mu.Lock()
	if _, exists := c.pairs[key]; !exists {
		c.mu.Unlock()
		return false
	}
	delete(c.pairs, key)
	running := c.running
	c.mu.Unlock()

	if running && c.feed != nil {
		if err := c.feed.Unsubscribe(pair); err != nil {
			c.logger.Warn("pair unsubscription failed",
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()))
		}
	}
	c.history.Drop(key)
	c.logger.Info("pair removed", slog.String("pair", pair.String()))
	return true
}

// MonitoredPairs returns the canonical pair set, sorted for stable output.
func (c *Coordinator) MonitoredPairs() []domain.TokenPair {
	c.mu.Lock()
	out := make([]domain.TokenPair, 0, len(c.pairs))
	for _, p := range c.pairs {
		out = append(out, p)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// PendingOpportunities returns the ranked pending set.
func (c *Coordinator) PendingOpportunities() []domain.ArbitrageOpportunity {
	return c.sink.Pending()
}

// UpdateConfig merges the patch into the engine configuration and pushes
// the result to the opportunity manager. A polling-interval change while
// running restarts the ticker; accumulated history and cache survive.
func (c *Coordinator) UpdateConfig(patch domain.EngineConfigPatch) domain.EngineConfig {
	c.mu.Lock()
	prev := c.cfg.PollingInterval
	c.cfg = c.cfg.Apply(patch)
	next := c.cfg
	running := c.running
	c.mu.Unlock()

	c.sink.SetConfig(next)

	if running && patch.PollingInterval != nil && next.PollingInterval != prev {
		select {
		case c.restart <- struct{}{}:
		default:
		}
		c.logger.Info("polling interval updated",
			slog.Duration("interval", next.PollingInterval))
	}
	return next
}

// Config returns a copy of the current engine configuration.
func (c *Coordinator) Config() domain.EngineConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Stats reports a consistent snapshot for UIs and the stats endpoint.
func (c *Coordinator) Stats() domain.MonitorStats {
	c.mu.Lock()
	stats := domain.MonitorStats{
		IsRunning:       c.running,
		PairCount:       len(c.pairs),
		VenueCount:      len(domain.ActiveVenues(c.venues)),
		CyclesCompleted: c.cycles,
		LastScanAt:      c.lastScanAt,
	}
	c.mu.Unlock()

	stats.PendingCount = c.sink.PendingCount()
	stats.RequestsRemaining = c.limiter.Remaining()
	return stats
}

func (c *Coordinator) subscribeAll(ctx context.Context) {
	if c.feed == nil {
		return
	}
	for _, pair := range c.MonitoredPairs() {
		if err := c.feed.Subscribe(pair); err != nil {
			c.logger.WarnContext(ctx, "pair subscription failed",
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) unsubscribeAll() {
	if c.feed == nil {
		return
	}
	for _, pair := range c.MonitoredPairs() {
		if err := c.feed.Unsubscribe(pair); err != nil {
			c.logger.Warn("pair unsubscription failed",
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, ev domain.Event) {
	if c.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	c.events.Publish(ctx, ev)
}
