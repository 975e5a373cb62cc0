package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantrend/dexarb/internal/crypto"
	"github.com/quantrend/dexarb/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"

var (
	weth = domain.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18}
	usdc = domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6}

	venues = []domain.Venue{
		{ID: "uniswap", Router: common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"), Active: true},
		{ID: "sushiswap", Router: common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"), Active: true},
	}
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:               "opp-1",
		TokenIn:          usdc,
		TokenOut:         weth,
		SourceVenue:      "uniswap",
		TargetVenue:      "sushiswap",
		ProfitPercentage: 3.0,
		TradeSize:        1000,
	}
}

func newRelayer(t *testing.T, baseURL string) *Relayer {
	t.Helper()
	signer, err := crypto.NewSigner(testKeyHex, 1)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return NewRelayer(discard(), baseURL, signer, venues, Options{})
}

func TestSubmitPostsSignedBundle(t *testing.T) {
	var got bundleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/bundles" {
			t.Errorf("path = %s, want /v1/bundles", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(bundleResponse{Success: true, TxHash: "0xabc123", GasUsed: 284_000})
	}))
	defer srv.Close()

	r := newRelayer(t, srv.URL)
	result, err := r.Submit(context.Background(), testOpportunity(), domain.FundingQuote{Provider: "aave-v3"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !result.Success || result.TxRef != "0xabc123" || result.GasUsed != 284_000 {
		t.Errorf("result = %+v", result)
	}

	if got.Signature == "" || got.Wallet == "" {
		t.Error("bundle must carry a signature and wallet address")
	}
	if got.OpportunityID != "opp-1" || got.FundingSource != "aave-v3" {
		t.Errorf("metadata = %s/%s", got.OpportunityID, got.FundingSource)
	}

	// 1000 USDC at 6 decimals.
	if got.Bundle.AmountIn != "1000000000" {
		t.Errorf("AmountIn = %s, want 1000000000", got.Bundle.AmountIn)
	}
	if got.Bundle.BuyRouter != venues[0].Router.Hex() {
		t.Errorf("BuyRouter = %s, want the source venue's router", got.Bundle.BuyRouter)
	}

	// Margin = 3% profit less 0.5% slippage on 1000 USDC.
	minOut, _ := new(big.Int).SetString(got.Bundle.MinAmountOut, 10)
	want := big.NewInt(1_025_000_000)
	if minOut.Cmp(want) != 0 {
		t.Errorf("MinAmountOut = %s, want %s", minOut, want)
	}
}

func TestSubmitReportsRevertAsFailureNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bundleResponse{Success: false, Reason: "revert: insufficient output"})
	}))
	defer srv.Close()

	r := newRelayer(t, srv.URL)
	result, err := r.Submit(context.Background(), testOpportunity(), domain.FundingQuote{})
	if err != nil {
		t.Fatalf("a revert must not be a transport error, got %v", err)
	}
	if result.Success || result.Reason != "revert: insufficient output" {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmitMapsServerErrorsToTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relayer overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := newRelayer(t, srv.URL)
	_, err := r.Submit(context.Background(), testOpportunity(), domain.FundingQuote{})
	if !errors.Is(err, domain.ErrTransientFetch) {
		t.Errorf("err = %v, want ErrTransientFetch", err)
	}
}

func TestSubmitRejectsUnknownVenue(t *testing.T) {
	r := newRelayer(t, "http://127.0.0.1:0")
	opp := testOpportunity()
	opp.TargetVenue = "curve"
	if _, err := r.Submit(context.Background(), opp, domain.FundingQuote{}); err == nil {
		t.Error("unknown venue accepted")
	}
}

func TestSubmitRejectsNonPositiveTradeSize(t *testing.T) {
	r := newRelayer(t, "http://127.0.0.1:0")
	opp := testOpportunity()
	opp.TradeSize = 0
	if _, err := r.Submit(context.Background(), opp, domain.FundingQuote{}); err == nil {
		t.Error("zero trade size accepted")
	}
}

func TestScaleByPctNeverShrinks(t *testing.T) {
	n := big.NewInt(1_000_000)
	if got := scaleByPct(n, -5); got.Cmp(n) < 0 {
		t.Errorf("scaleByPct floored below the input: %s", got)
	}
	if got := scaleByPct(n, 2.5); got.Cmp(big.NewInt(1_025_000)) != 0 {
		t.Errorf("scaleByPct(1e6, 2.5) = %s, want 1025000", got)
	}
}
