// Package opportunity owns the lifecycle of detected arbitrage
// opportunities: ingestion and dedup of scanner output, the
// pending/executing/completed/failed state machine, strategy-driven
// execution scheduling, and the circuit breaker that halts auto-execution
// after repeated failures.
package opportunity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/scanner"
)

// FundingSource quotes and nets flash-funding costs. It is implemented by
// the funding selector.
type FundingSource interface {
	SelectBest(ctx context.Context, token domain.Token, amount float64) (domain.FundingQuote, error)
	NetProfitability(expectedProfit float64, quote domain.FundingQuote) domain.Profitability
	Provider(name string) (domain.FundingProvider, bool)
}

// RiskScorer annotates a fresh opportunity with a confidence score and a
// risk level before it enters the pending set.
type RiskScorer interface {
	Score(opp domain.ArbitrageOpportunity) (float64, domain.RiskLevel)
}

// Publisher fans engine events out to the bus, WebSocket clients, and
// notifiers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// Options tunes the manager's retention sweep and circuit breaker.
type Options struct {
	Retention        time.Duration // terminal records older than this are swept
	SweepInterval    time.Duration
	CircuitThreshold int // consecutive failures before auto-execution halts
	CircuitWindow    time.Duration
	ExecTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Retention <= 0 {
		o.Retention = time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Minute
	}
	if o.CircuitThreshold < 1 {
		o.CircuitThreshold = 3
	}
	if o.CircuitWindow <= 0 {
		o.CircuitWindow = 10 * time.Minute
	}
	if o.ExecTimeout <= 0 {
		o.ExecTimeout = 60 * time.Second
	}
	return o
}

// Manager tracks every live opportunity, schedules executions according to
// the configured strategy, and records outcomes. All mutation goes through
// the manager; accessors return copies.
type Manager struct {
	logger     *slog.Logger
	funding    FundingSource
	settlement domain.SettlementExecutor
	opts       Options
	circuit    *circuitBreaker

	mu        sync.Mutex
	cfg       domain.EngineConfig
	opps      map[string]*domain.ArbitrageOpportunity
	liveKeys  map[string]string // natural key -> id, non-terminal records only
	queue     execQueue
	queued    map[string]bool // ids admitted or running
	executing int

	wake chan struct{}

	scorer    RiskScorer
	events    Publisher
	store     domain.OpportunityStore
	execStore domain.ExecutionStore
	locks     domain.LockManager
}

// NewManager creates a Manager executing through the given funding source
// and settlement executor. Risk scoring, event publication, persistence,
// and distributed locking are optional and attached via setters.
func NewManager(logger *slog.Logger, funding FundingSource, settlement domain.SettlementExecutor, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		logger:     logger.With(slog.String("component", "opportunity")),
		funding:    funding,
		settlement: settlement,
		opts:       opts,
		circuit:    newCircuitBreaker(opts.CircuitThreshold, opts.CircuitWindow),
		opps:       make(map[string]*domain.ArbitrageOpportunity),
		liveKeys:   make(map[string]string),
		queued:     make(map[string]bool),
		wake:       make(chan struct{}, 1),
	}
}

// SetRiskScorer attaches confidence scoring for ingested opportunities.
func (m *Manager) SetRiskScorer(s RiskScorer) { m.scorer = s }

// SetPublisher attaches event publication.
func (m *Manager) SetPublisher(p Publisher) { m.events = p }

// SetStores attaches opportunity and execution persistence. Either may be
// nil; persistence failures are logged and never block the engine.
func (m *Manager) SetStores(opps domain.OpportunityStore, execs domain.ExecutionStore) {
	m.store = opps
	m.execStore = execs
}

// SetLockManager attaches distributed execution locking so two replicas do
// not settle the same discrepancy.
func (m *Manager) SetLockManager(lm domain.LockManager) { m.locks = lm }

// SetConfig replaces the execution configuration. Takes effect for the next
// admission decision; in-flight executions are never preempted.
func (m *Manager) SetConfig(cfg domain.EngineConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.wakeDispatcher()
}

// Config returns a copy of the current execution configuration.
func (m *Manager) Config() domain.EngineConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Run drives execution dispatch and the retention sweep until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("opportunity manager started")
	defer m.logger.Info("opportunity manager stopped")

	sweep := time.NewTicker(m.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
			m.dispatch()
		case <-sweep.C:
			m.sweep(ctx)
		}
	}
}

// Ingest merges a scan's candidates into the live set. A candidate whose
// natural key matches a pending record replaces it in place, keeping the
// original id and detection time. Candidates matching an executing record
// are dropped. Returns the number of records newly created.
func (m *Manager) Ingest(ctx context.Context, candidates []domain.ArbitrageOpportunity) int {
	created := 0
	for _, cand := range candidates {
		fresh, opp := m.merge(cand)
		if opp == nil {
			continue
		}
		if m.store != nil && fresh {
			if err := m.store.Insert(ctx, *opp); err != nil {
				m.logger.WarnContext(ctx, "opportunity insert failed",
					slog.String("opportunity_id", opp.ID),
					slog.String("error", err.Error()))
			}
		}
		if fresh {
			created++
			m.publish(ctx, domain.Event{Type: domain.EventOpportunityFound, Opportunity: opp})
			m.logger.InfoContext(ctx, "opportunity found",
				slog.String("opportunity_id", opp.ID),
				slog.String("pair", opp.TokenIn.String()+"/"+opp.TokenOut.String()),
				slog.String("source", opp.SourceVenue),
				slog.String("target", opp.TargetVenue),
				slog.Float64("profit_pct", opp.ProfitPercentage))
		}
		m.tryAutoExecute(ctx, *opp)
	}
	return created
}

// merge applies one candidate under the lock. It returns whether a new
// record was created and a copy of the stored record, or nil when the
// candidate was dropped.
func (m *Manager) merge(cand domain.ArbitrageOpportunity) (bool, *domain.ArbitrageOpportunity) {
	now := time.Now().UTC()
	key := cand.NaturalKey()

	if m.scorer != nil {
		cand.ConfidenceScore, cand.RiskLevel = m.scorer.Score(cand)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, live := m.liveKeys[key]; live {
		existing := m.opps[id]
		if existing.Status != domain.OpportunityPending {
			// Executing; rescans never disturb an in-flight trade.
			return false, nil
		}
		cand.ID = existing.ID
		cand.DetectedAt = existing.DetectedAt
		cand.Status = domain.OpportunityPending
		cand.UpdatedAt = now
		*existing = cand
		out := cand
		return false, &out
	}

	if cand.ID == "" {
		cand.ID = uuid.New().String()
	}
	if cand.DetectedAt.IsZero() {
		cand.DetectedAt = now
	}
	cand.Status = domain.OpportunityPending
	cand.UpdatedAt = now

	stored := cand
	m.opps[stored.ID] = &stored
	m.liveKeys[key] = stored.ID
	out := stored
	return true, &out
}

// ExecuteOpportunity admits an opportunity for execution. It fails with
// ErrNotFound for unknown ids and ErrAlreadyTerminal for completed or
// failed records. Admission of an already queued or executing id is a
// no-op. Manual admission works even while the circuit breaker is open.
func (m *Manager) ExecuteOpportunity(ctx context.Context, id string) error {
	m.mu.Lock()
	o, ok := m.opps[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	if o.Status.Terminal() {
		status := o.Status
		m.mu.Unlock()
		return fmt.Errorf("opportunity %s is %s: %w", id, status, domain.ErrAlreadyTerminal)
	}
	if m.queued[id] {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "opportunity already admitted", slog.String("opportunity_id", id))
		return nil
	}
	m.queue.push(id, o.ProfitPercentage)
	m.queued[id] = true
	m.mu.Unlock()

	if m.circuit.Open() {
		m.logger.WarnContext(ctx, "manual execution while circuit breaker open",
			slog.String("opportunity_id", id))
	}
	m.wakeDispatcher()
	return nil
}

// tryAutoExecute admits the candidate when auto-execution is on and the
// profit, confidence, risk, and net-of-funding gates all clear.
func (m *Manager) tryAutoExecute(ctx context.Context, opp domain.ArbitrageOpportunity) {
	cfg := m.Config()
	if !cfg.AutoExecute {
		return
	}
	log := m.logger.With(slog.String("opportunity_id", opp.ID))
	if m.circuit.Open() {
		log.DebugContext(ctx, "auto-execution skipped",
			slog.String("reason", domain.ErrExecutionHalted.Error()))
		return
	}
	if opp.ProfitPercentage < cfg.MinProfitPercentage {
		return
	}
	if opp.ConfidenceScore < cfg.MinConfidenceScore {
		log.DebugContext(ctx, "confidence below auto-execute threshold",
			slog.Float64("confidence", opp.ConfidenceScore),
			slog.Float64("min", cfg.MinConfidenceScore))
		return
	}
	if !opp.RiskLevel.Within(cfg.RiskTolerance) {
		log.DebugContext(ctx, "risk above tolerance",
			slog.String("risk", string(opp.RiskLevel)),
			slog.String("tolerance", string(cfg.RiskTolerance)))
		return
	}
	if cfg.MaxTradeSize > 0 && opp.TradeSize > cfg.MaxTradeSize {
		return
	}

	quote, err := m.funding.SelectBest(ctx, opp.TokenIn, opp.TradeSize)
	if err != nil {
		log.DebugContext(ctx, "no funding for auto-execution", slog.String("error", err.Error()))
		return
	}
	if net := m.funding.NetProfitability(opp.EstimatedProfit, quote); !net.IsProfitable {
		log.DebugContext(ctx, "funding fee erases profit",
			slog.Float64("estimated_profit", opp.EstimatedProfit),
			slog.Float64("funding_fee", quote.FeeAmount))
		return
	}

	m.mu.Lock()
	o, ok := m.opps[opp.ID]
	if !ok || o.Status != domain.OpportunityPending || m.queued[opp.ID] {
		m.mu.Unlock()
		return
	}
	m.queue.push(opp.ID, o.ProfitPercentage)
	m.queued[opp.ID] = true
	m.mu.Unlock()

	log.InfoContext(ctx, "auto-executing opportunity",
		slog.Float64("profit_pct", opp.ProfitPercentage),
		slog.Float64("net_profit", opp.EstimatedProfit-quote.FeeAmount))
	m.wakeDispatcher()
}

func (m *Manager) wakeDispatcher() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatch starts executions until the strategy's concurrency bound or the
// queue is exhausted.
func (m *Manager) dispatch() {
	for {
		m.mu.Lock()
		limit := 1
		if m.cfg.Strategy != domain.StrategySequential && m.cfg.MaxConcurrentTrades > 1 {
			limit = m.cfg.MaxConcurrentTrades
		}
		if m.executing >= limit || m.queue.len() == 0 {
			m.mu.Unlock()
			return
		}
		byProfit := m.cfg.Strategy == domain.StrategyPriority
		id, _ := m.queue.pop(byProfit)
		m.executing++
		m.mu.Unlock()

		go m.execute(id)
	}
}

// execResult carries one execution attempt's outcome into finish.
type execResult struct {
	success     bool
	funding     domain.FundingQuote
	txRef       string
	gasUsed     uint64
	submitted   bool // settlement was reached, so gas was spent
	reason      string
	skipCircuit bool
}

// execute runs one admitted opportunity end to end: claim, fund, settle.
// It uses a detached context so engine shutdown never abandons a trade
// mid-settlement.
func (m *Manager) execute(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ExecTimeout)
	defer cancel()

	m.mu.Lock()
	o, ok := m.opps[id]
	if !ok || o.Status.Terminal() {
		m.executing--
		delete(m.queued, id)
		m.mu.Unlock()
		m.wakeDispatcher()
		return
	}
	o.Status = domain.OpportunityExecuting
	o.UpdatedAt = time.Now().UTC()
	snapshot := *o
	m.mu.Unlock()

	started := time.Now().UTC()
	log := m.logger.With(
		slog.String("opportunity_id", id),
		slog.String("source", snapshot.SourceVenue),
		slog.String("target", snapshot.TargetVenue),
	)
	log.Info("execution started", slog.Float64("trade_size", snapshot.TradeSize))

	m.persistStatus(ctx, id, domain.OpportunityExecuting, "")
	m.publish(ctx, domain.Event{Type: domain.EventExecutionStarted, Opportunity: &snapshot})

	// Detection-only deployments carry no settlement executor.
	if m.settlement == nil {
		m.finish(ctx, id, snapshot, started, execResult{reason: "settlement executor not configured", skipCircuit: true})
		return
	}

	// 1. Claim the discrepancy across replicas.
	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, "exec:"+snapshot.NaturalKey(), m.opts.ExecTimeout)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			log.Warn("discrepancy already claimed by another replica")
			m.finish(ctx, id, snapshot, started, execResult{reason: "duplicate execution suppressed", skipCircuit: true})
			return
		case err != nil:
			// Lock service trouble is not a reason to skip the trade.
			log.Warn("execution lock unavailable", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	// 2. Arrange flash funding.
	quote, err := m.funding.SelectBest(ctx, snapshot.TokenIn, snapshot.TradeSize)
	if err != nil {
		m.finish(ctx, id, snapshot, started, execResult{reason: "funding: " + err.Error()})
		return
	}
	if provider, ok := m.funding.Provider(quote.Provider); ok {
		fr, err := provider.Execute(ctx, domain.FundingRequest{
			Token:       snapshot.TokenIn,
			Amount:      snapshot.TradeSize,
			Opportunity: snapshot,
		})
		if err != nil {
			m.finish(ctx, id, snapshot, started, execResult{funding: quote, reason: "funding execute: " + err.Error()})
			return
		}
		if !fr.Success {
			m.finish(ctx, id, snapshot, started, execResult{funding: quote, reason: "funding rejected: " + fr.Reason})
			return
		}
	}

	// 3. Submit for settlement.
	res, err := m.settlement.Submit(ctx, snapshot, quote)
	if err != nil {
		m.finish(ctx, id, snapshot, started, execResult{funding: quote, submitted: true, reason: "settlement: " + err.Error()})
		return
	}
	if !res.Success {
		m.finish(ctx, id, snapshot, started, execResult{funding: quote, submitted: true, gasUsed: res.GasUsed, reason: res.Reason})
		return
	}
	m.finish(ctx, id, snapshot, started, execResult{
		success:   true,
		funding:   quote,
		submitted: true,
		txRef:     res.TxRef,
		gasUsed:   res.GasUsed,
	})
}

// finish applies the terminal transition, records the attempt, updates the
// circuit breaker, and frees the execution slot.
func (m *Manager) finish(ctx context.Context, id string, snapshot domain.ArbitrageOpportunity, started time.Time, r execResult) {
	now := time.Now().UTC()

	m.mu.Lock()
	if o, ok := m.opps[id]; ok {
		if r.success {
			o.Status = domain.OpportunityCompleted
			o.TxRef = r.txRef
			o.ExecutedAt = &now
		} else {
			o.Status = domain.OpportunityFailed
			o.FailureReason = r.reason
		}
		o.UpdatedAt = now
		delete(m.liveKeys, o.NaturalKey())
		snapshot = *o
	}
	m.executing--
	delete(m.queued, id)
	cfg := m.cfg
	m.mu.Unlock()

	status := domain.OpportunityFailed
	outcome := domain.ExecutionFailed
	if r.success {
		status = domain.OpportunityCompleted
		outcome = domain.ExecutionSucceeded
	}
	m.persistStatus(ctx, id, status, r.reason)

	var gasCost float64
	if r.submitted {
		gasCost = snapshot.GasEstimate
		if r.gasUsed > 0 && cfg.GasPriceGwei > 0 {
			gasCost = scanner.GasCostNative(cfg.GasPriceGwei, r.gasUsed)
		}
	}
	// EstimatedProfit is already net of the gas estimate; funding fees are
	// netted here. A reverted settlement still burns its gas.
	realized := -gasCost
	if r.success {
		realized = snapshot.EstimatedProfit - r.funding.FeeAmount
	}

	rec := domain.ExecutionRecord{
		ID:              uuid.New().String(),
		OpportunityID:   id,
		NaturalKey:      snapshot.NaturalKey(),
		TokenIn:         snapshot.TokenIn.Symbol,
		TokenOut:        snapshot.TokenOut.Symbol,
		SourceVenue:     snapshot.SourceVenue,
		TargetVenue:     snapshot.TargetVenue,
		TradeSize:       snapshot.TradeSize,
		ExpectedProfit:  snapshot.EstimatedProfit,
		FundingProvider: r.funding.Provider,
		FundingFee:      r.funding.FeeAmount,
		GasCost:         gasCost,
		RealizedProfit:  realized,
		Outcome:         outcome,
		Reason:          r.reason,
		TxRef:           r.txRef,
		StartedAt:       started,
		FinishedAt:      now,
	}
	if m.execStore != nil {
		if err := m.execStore.Create(ctx, rec); err != nil {
			m.logger.WarnContext(ctx, "execution record failed",
				slog.String("execution_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}

	if r.success {
		m.circuit.RecordSuccess()
		m.logger.Info("execution completed",
			slog.String("opportunity_id", id),
			slog.String("tx_ref", r.txRef),
			slog.Float64("realized_profit", realized))
		m.publish(ctx, domain.Event{
			Type:        domain.EventExecutionCompleted,
			Opportunity: &snapshot,
			Detail:      map[string]any{"txRef": r.txRef, "realizedProfit": realized},
		})
	} else {
		m.logger.Warn("execution failed",
			slog.String("opportunity_id", id),
			slog.String("reason", r.reason))
		m.publish(ctx, domain.Event{
			Type:        domain.EventExecutionFailed,
			Opportunity: &snapshot,
			Detail:      map[string]any{"reason": r.reason},
		})
		if !r.skipCircuit && m.circuit.RecordFailure(now) {
			m.logger.Error("circuit breaker open, auto-execution halted",
				slog.Int("threshold", m.opts.CircuitThreshold))
			m.publish(ctx, domain.Event{Type: domain.EventCircuitOpen, Detail: map[string]any{
				"threshold": m.opts.CircuitThreshold,
			}})
		}
	}

	m.wakeDispatcher()
}

// sweep evicts terminal records older than the retention window from the
// in-memory set. Database rows are kept for the archive pipeline, which
// prunes on its own, much longer, horizon.
func (m *Manager) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.opts.Retention)

	m.mu.Lock()
	removed := 0
	for id, o := range m.opps {
		if o.Status.Terminal() && o.UpdatedAt.Before(cutoff) {
			delete(m.opps, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.DebugContext(ctx, "retention sweep", slog.Int("removed", removed))
	}
}

// Get returns a copy of the opportunity with the given id.
func (m *Manager) Get(id string) (domain.ArbitrageOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opps[id]
	if !ok {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	return *o, nil
}

// Pending returns copies of all pending opportunities, ranked by profit
// percentage descending with ties broken by lower gas estimate.
func (m *Manager) Pending() []domain.ArbitrageOpportunity {
	m.mu.Lock()
	out := make([]domain.ArbitrageOpportunity, 0, len(m.opps))
	for _, o := range m.opps {
		if o.Status == domain.OpportunityPending {
			out = append(out, *o)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProfitPercentage != out[j].ProfitPercentage {
			return out[i].ProfitPercentage > out[j].ProfitPercentage
		}
		return out[i].GasEstimate < out[j].GasEstimate
	})
	return out
}

// PendingCount returns the number of pending opportunities.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.opps {
		if o.Status == domain.OpportunityPending {
			n++
		}
	}
	return n
}

// Snapshot returns copies of every tracked opportunity, newest update
// first. Terminal records appear until the retention sweep evicts them.
func (m *Manager) Snapshot() []domain.ArbitrageOpportunity {
	m.mu.Lock()
	out := make([]domain.ArbitrageOpportunity, 0, len(m.opps))
	for _, o := range m.opps {
		out = append(out, *o)
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// CircuitOpen reports whether auto-execution is halted.
func (m *Manager) CircuitOpen() bool { return m.circuit.Open() }

// ResetCircuit re-enables auto-execution after a circuit trip.
func (m *Manager) ResetCircuit() {
	m.circuit.Reset()
	m.logger.Info("circuit breaker reset")
}

func (m *Manager) persistStatus(ctx context.Context, id string, status domain.OpportunityStatus, reason string) {
	if m.store == nil {
		return
	}
	if err := m.store.UpdateStatus(ctx, id, status, reason); err != nil {
		m.logger.WarnContext(ctx, "opportunity status update failed",
			slog.String("opportunity_id", id),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) publish(ctx context.Context, ev domain.Event) {
	if m.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	m.events.Publish(ctx, ev)
}
