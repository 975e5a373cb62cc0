// Package settlement submits signed arbitrage bundles to the relayer API,
// which wraps both trade legs and the flash funding into one atomic
// on-chain transaction.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantrend/dexarb/internal/crypto"
	"github.com/quantrend/dexarb/internal/domain"
)

const (
	// submitTimeout bounds a single bundle submission including the
	// relayer's wait for on-chain inclusion.
	submitTimeout = 45 * time.Second

	// defaultSlippagePct is the tolerated shortfall against the quoted
	// profit before the contract reverts the bundle.
	defaultSlippagePct = 0.5

	// defaultDeadline is how long a signed bundle stays valid.
	defaultDeadline = 90 * time.Second
)

// Options tune bundle construction.
type Options struct {
	// SlippagePct is subtracted from the quoted profit percentage when
	// computing the bundle's minimum output. Zero means defaultSlippagePct.
	SlippagePct float64

	// Deadline is the validity window stamped into each bundle.
	// Zero means defaultDeadline.
	Deadline time.Duration
}

func (o Options) withDefaults() Options {
	if o.SlippagePct <= 0 {
		o.SlippagePct = defaultSlippagePct
	}
	if o.Deadline <= 0 {
		o.Deadline = defaultDeadline
	}
	return o
}

// Relayer signs settlement bundles and submits them over HTTP. It
// implements the engine's settlement contract; the atomic two-leg swap
// itself lives in the on-chain contract behind the relayer.
type Relayer struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	auth       *crypto.HMACAuth
	logger     *slog.Logger
	routers    map[string]common.Address
	opts       Options
}

var _ domain.SettlementExecutor = (*Relayer)(nil)

// NewRelayer creates a relayer client. venues supplies the router address
// for each venue ID referenced by submitted opportunities.
func NewRelayer(logger *slog.Logger, baseURL string, signer *crypto.Signer, venues []domain.Venue, opts Options) *Relayer {
	routers := make(map[string]common.Address, len(venues))
	for _, v := range venues {
		routers[v.ID] = v.Router
	}
	return &Relayer{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: submitTimeout,
		},
		signer:  signer,
		logger:  logger.With(slog.String("component", "settlement")),
		routers: routers,
		opts:    opts.withDefaults(),
	}
}

// SetAuth attaches HMAC credentials for the relayer API.
func (r *Relayer) SetAuth(auth *crypto.HMACAuth) { r.auth = auth }

// bundleRequest is the relayer's wire format for a submission.
type bundleRequest struct {
	Bundle        crypto.BundlePayload `json:"bundle"`
	Signature     string               `json:"signature"`
	Wallet        string               `json:"wallet"`
	OpportunityID string               `json:"opportunityId,omitempty"`
	FundingSource string               `json:"fundingSource,omitempty"`
}

// bundleResponse is the relayer's wire format for a submission outcome.
type bundleResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	GasUsed uint64 `json:"gasUsed"`
	Reason  string `json:"reason"`
}

// Submit builds, signs, and posts a settlement bundle for the opportunity.
// A rejected or reverted bundle comes back as Success=false with the
// relayer's reason; a non-nil error means the submission itself failed.
func (r *Relayer) Submit(ctx context.Context, opp domain.ArbitrageOpportunity, funding domain.FundingQuote) (domain.SettlementResult, error) {
	bundle, err := r.buildBundle(opp)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: build bundle: %w", err)
	}

	sig, err := r.signer.SignBundle(bundle)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: %w: %v", domain.ErrSigningFailed, err)
	}

	req := bundleRequest{
		Bundle:        bundle,
		Signature:     sig,
		Wallet:        r.signer.Address().Hex(),
		OpportunityID: opp.ID,
		FundingSource: funding.Provider,
	}

	resp, err := r.post(ctx, "/v1/bundles", req)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: submit bundle: %w", err)
	}

	result := domain.SettlementResult{
		Success: resp.Success,
		TxRef:   resp.TxHash,
		GasUsed: resp.GasUsed,
		Reason:  resp.Reason,
	}
	if !result.Success && result.Reason == "" {
		result.Reason = "relayer rejected bundle"
	}
	return result, nil
}

// buildBundle assembles the EIP-712 payload for both legs of the trade.
func (r *Relayer) buildBundle(opp domain.ArbitrageOpportunity) (crypto.BundlePayload, error) {
	buyRouter, ok := r.routers[opp.SourceVenue]
	if !ok {
		return crypto.BundlePayload{}, fmt.Errorf("no router configured for venue %q", opp.SourceVenue)
	}
	sellRouter, ok := r.routers[opp.TargetVenue]
	if !ok {
		return crypto.BundlePayload{}, fmt.Errorf("no router configured for venue %q", opp.TargetVenue)
	}

	amountIn, err := toWei(opp.TradeSize, opp.TokenIn.Decimals)
	if err != nil {
		return crypto.BundlePayload{}, fmt.Errorf("trade size: %w", err)
	}

	// The bundle starts and ends in TokenIn; minAmountOut is the quoted
	// profit less slippage, floored at the input so the contract reverts
	// before settling a gross loss.
	marginPct := opp.ProfitPercentage - r.opts.SlippagePct
	if marginPct < 0 {
		marginPct = 0
	}
	minOut := scaleByPct(amountIn, marginPct)

	deadline := time.Now().Add(r.opts.Deadline).Unix()

	return crypto.BundlePayload{
		TokenIn:      opp.TokenIn.Address.Hex(),
		TokenOut:     opp.TokenOut.Address.Hex(),
		BuyRouter:    buyRouter.Hex(),
		SellRouter:   sellRouter.Hex(),
		AmountIn:     amountIn.String(),
		MinAmountOut: minOut.String(),
		Deadline:     strconv.FormatInt(deadline, 10),
		Nonce:        strconv.FormatInt(time.Now().UnixNano(), 10),
	}, nil
}

// post sends a signed JSON request to the relayer and decodes the outcome.
func (r *Relayer) post(ctx context.Context, path string, body any) (bundleResponse, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return bundleResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return bundleResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if r.auth != nil {
		for k, v := range r.auth.Headers(http.MethodPost, path, string(jsonBody)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return bundleResponse{}, fmt.Errorf("%w: %v", domain.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return bundleResponse{}, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return bundleResponse{}, fmt.Errorf("%w: %s", domain.ErrUnauthorized, string(respBody))
	case resp.StatusCode == http.StatusTooManyRequests:
		return bundleResponse{}, fmt.Errorf("%w: %s", domain.ErrRateLimited, string(respBody))
	case resp.StatusCode >= 500:
		return bundleResponse{}, fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransientFetch, resp.StatusCode, string(respBody))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return bundleResponse{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var out bundleResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return bundleResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// toWei converts a token amount to its smallest-unit integer representation.
func toWei(amount float64, decimals uint8) (*big.Int, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %v", amount)
	}
	f := new(big.Float).SetFloat64(amount)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	f.Mul(f, new(big.Float).SetInt(scale))
	wei, _ := f.Int(nil)
	return wei, nil
}

// scaleByPct returns n increased by pct percent. The percentage is rounded
// to basis points so the arithmetic stays exact in integers; non-positive
// margins return n unchanged.
func scaleByPct(n *big.Int, pct float64) *big.Int {
	bps := int64(math.Round(pct * 100))
	if bps <= 0 {
		return new(big.Int).Set(n)
	}
	out := new(big.Int).Mul(n, big.NewInt(10_000+bps))
	return out.Div(out, big.NewInt(10_000))
}
