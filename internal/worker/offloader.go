// Package worker hosts the compute offloader: an actor that performs the
// CPU-heavy analysis (full opportunity scans, volatility, candle bucketing)
// off the polling loop. Callers talk to it only through request/response
// messages correlated by id; payloads are serialized JSON so no live engine
// state ever crosses the boundary.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/pricing"
	"github.com/quantrend/dexarb/internal/scanner"
)

// Kind selects the computation a request asks for.
type Kind string

const (
	KindScan       Kind = "scan"
	KindVolatility Kind = "volatility"
	KindCandleify  Kind = "candleify"
)

// Request is one unit of offloaded work. Epoch is stamped by the submitter
// and echoed back so superseded responses can be recognised and dropped.
type Request struct {
	ID      string
	Kind    Kind
	Epoch   uint64
	Payload json.RawMessage
}

// Response carries the result (or error text) for the request with the
// matching ID. Responses may arrive in any order.
type Response struct {
	ID     string
	Kind   Kind
	Epoch  uint64
	Result json.RawMessage
	Err    string
}

// VolatilityPayload asks for dispersion statistics over a set of points.
type VolatilityPayload struct {
	PairKey string
	Points  []domain.PricePoint
}

// VolatilityResult is the answer to a volatility request.
type VolatilityResult struct {
	PairKey    string
	Average    float64
	Volatility float64
	Samples    int
}

// CandleifyPayload asks for OHLC bucketing of a set of points.
type CandleifyPayload struct {
	PairKey string
	Points  []domain.PricePoint
	Bucket  time.Duration
}

// CandleifyResult is the answer to a candleify request.
type CandleifyResult struct {
	PairKey string
	Candles []pricing.Candle
}

const (
	defaultQueueSize     = 32
	defaultCacheSize     = 100
	defaultCacheTTL      = 60 * time.Second
	defaultResponseDepth = 64
)

// Offloader is the single-consumer actor. Submit enqueues work without
// blocking; results appear on Responses.
type Offloader struct {
	logger    *slog.Logger
	requests  chan Request
	responses chan Response
	cache     *resultCache
}

// New creates an Offloader with the given queue depth (<=0 selects the
// default) and a bounded short-TTL result cache so identical requests
// within the TTL skip recomputation.
func New(logger *slog.Logger, queueSize int) *Offloader {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Offloader{
		logger:    logger.With(slog.String("component", "offloader")),
		requests:  make(chan Request, queueSize),
		responses: make(chan Response, defaultResponseDepth),
		cache:     newResultCache(defaultCacheSize, defaultCacheTTL),
	}
}

// Submit enqueues a request. It never blocks: when the queue is full it
// returns domain.ErrOffloaderBusy and the caller skips this cycle.
func (o *Offloader) Submit(req Request) error {
	select {
	case o.requests <- req:
		return nil
	default:
		return domain.ErrOffloaderBusy
	}
}

// Responses returns the channel results are delivered on. The channel is
// never closed while the offloader is running; consumers select on it
// together with their own done signal.
func (o *Offloader) Responses() <-chan Response {
	return o.responses
}

// Run consumes requests until ctx is done. It is intended to be driven by
// an errgroup alongside the coordinator.
func (o *Offloader) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "offloader started")
	for {
		select {
		case <-ctx.Done():
			o.logger.InfoContext(ctx, "offloader stopped")
			return ctx.Err()
		case req := <-o.requests:
			resp := o.process(req)
			select {
			case o.responses <- resp:
			default:
				o.logger.WarnContext(ctx, "response channel full, dropping result",
					slog.String("request_id", req.ID),
					slog.String("kind", string(req.Kind)),
				)
			}
		}
	}
}

// process answers one request, consulting the result cache first. Cached
// results are re-wrapped with the incoming request's id and epoch so
// correlation still holds for the new caller.
func (o *Offloader) process(req Request) Response {
	key := cacheKey(req.Kind, req.Payload)
	if cached, ok := o.cache.get(key); ok {
		o.logger.Debug("result cache hit",
			slog.String("request_id", req.ID),
			slog.String("kind", string(req.Kind)),
		)
		return Response{ID: req.ID, Kind: req.Kind, Epoch: req.Epoch, Result: cached}
	}

	started := time.Now()
	result, err := o.compute(req)
	if err != nil {
		o.logger.Warn("offloaded computation failed",
			slog.String("request_id", req.ID),
			slog.String("kind", string(req.Kind)),
			slog.String("error", err.Error()),
		)
		return Response{ID: req.ID, Kind: req.Kind, Epoch: req.Epoch, Err: err.Error()}
	}

	o.cache.put(key, result)
	o.logger.Debug("offloaded computation done",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.Duration("took", time.Since(started)),
	)
	return Response{ID: req.ID, Kind: req.Kind, Epoch: req.Epoch, Result: result}
}

func (o *Offloader) compute(req Request) (json.RawMessage, error) {
	switch req.Kind {
	case KindScan:
		var in scanner.Input
		if err := json.Unmarshal(req.Payload, &in); err != nil {
			return nil, fmt.Errorf("worker: decode scan payload: %w", err)
		}
		return json.Marshal(scanner.Scan(in))

	case KindVolatility:
		var in VolatilityPayload
		if err := json.Unmarshal(req.Payload, &in); err != nil {
			return nil, fmt.Errorf("worker: decode volatility payload: %w", err)
		}
		return json.Marshal(VolatilityResult{
			PairKey:    in.PairKey,
			Average:    pricing.Average(in.Points),
			Volatility: pricing.Volatility(in.Points),
			Samples:    len(in.Points),
		})

	case KindCandleify:
		var in CandleifyPayload
		if err := json.Unmarshal(req.Payload, &in); err != nil {
			return nil, fmt.Errorf("worker: decode candleify payload: %w", err)
		}
		return json.Marshal(CandleifyResult{
			PairKey: in.PairKey,
			Candles: pricing.Candleify(in.Points, in.Bucket),
		})

	default:
		return nil, fmt.Errorf("worker: unknown request kind %q", req.Kind)
	}
}

// NewRequest builds a request of the given kind, assigning a fresh id and
// marshaling the payload.
func NewRequest(kind Kind, epoch uint64, payload any) (Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("worker: marshal %s payload: %w", kind, err)
	}
	return Request{
		ID:      uuid.New().String(),
		Kind:    kind,
		Epoch:   epoch,
		Payload: raw,
	}, nil
}

// cacheKey is a deterministic digest of (kind, payload) so identical work
// within the TTL window is answered from the cache.
func cacheKey(kind Kind, payload []byte) string {
	sum := ethcrypto.Keccak256([]byte(kind), payload)
	return fmt.Sprintf("%x", sum)
}
