package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/scanner"
)

var (
	weth = domain.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH"}
	usdc = domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC"}
)

func scanInput() scanner.Input {
	return scanner.Input{
		Tokens: []domain.Token{weth, usdc},
		Venues: []domain.VenuePrices{
			{VenueID: "uniswap", Prices: map[string]float64{
				"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": 1.00,
				"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": 1.00,
			}},
			{VenueID: "sushiswap", Prices: map[string]float64{
				"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": 1.03,
				"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": 1.00,
			}},
		},
		Params: scanner.Params{MinProfitPercentage: 2, TradeSize: 10},
	}
}

func startOffloader(t *testing.T) (*Offloader, context.CancelFunc) {
	t.Helper()
	o := New(slog.Default(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = o.Run(ctx) }()
	return o, cancel
}

func awaitResponse(t *testing.T, o *Offloader, id string) Response {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case resp := <-o.Responses():
			if resp.ID == id {
				return resp
			}
		case <-deadline:
			t.Fatalf("timed out waiting for response %s", id)
		}
	}
}

func TestOffloaderAnswersScanRequests(t *testing.T) {
	o, cancel := startOffloader(t)
	defer cancel()

	req, err := NewRequest(KindScan, 7, scanInput())
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if err := o.Submit(req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	resp := awaitResponse(t, o, req.ID)
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	if resp.Epoch != 7 {
		t.Errorf("Epoch = %d, want the submitted epoch 7", resp.Epoch)
	}
	if resp.Kind != KindScan {
		t.Errorf("Kind = %s, want scan", resp.Kind)
	}

	var opps []domain.ArbitrageOpportunity
	if err := json.Unmarshal(resp.Result, &opps); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	if opps[0].SourceVenue != "uniswap" {
		t.Errorf("SourceVenue = %s, want uniswap", opps[0].SourceVenue)
	}
}

func TestOffloaderCachesIdenticalRequests(t *testing.T) {
	o, cancel := startOffloader(t)
	defer cancel()

	first, err := NewRequest(KindScan, 1, scanInput())
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if err := o.Submit(first); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	firstResp := awaitResponse(t, o, first.ID)

	second, err := NewRequest(KindScan, 2, scanInput())
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if err := o.Submit(second); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	secondResp := awaitResponse(t, o, second.ID)

	// A fresh scan assigns new UUIDs; a cached result replays the stored
	// bytes, so identical opportunity IDs prove the cache answered.
	var a, b []domain.ArbitrageOpportunity
	if err := json.Unmarshal(firstResp.Result, &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(secondResp.Result, &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("got %d and %d opportunities, want 1 and 1", len(a), len(b))
	}
	if a[0].ID != b[0].ID {
		t.Error("identical payload within the TTL should be served from the result cache")
	}
	if secondResp.ID != second.ID || secondResp.Epoch != 2 {
		t.Error("cached responses must carry the new request's id and epoch")
	}
}

func TestOffloaderComputesVolatility(t *testing.T) {
	o, cancel := startOffloader(t)
	defer cancel()

	now := time.Now().UTC()
	payload := VolatilityPayload{
		PairKey: "usdc:weth",
		Points: []domain.PricePoint{
			{Price: 2, Timestamp: now},
			{Price: 4, Timestamp: now.Add(time.Second)},
			{Price: 4, Timestamp: now.Add(2 * time.Second)},
			{Price: 4, Timestamp: now.Add(3 * time.Second)},
			{Price: 5, Timestamp: now.Add(4 * time.Second)},
			{Price: 5, Timestamp: now.Add(5 * time.Second)},
			{Price: 7, Timestamp: now.Add(6 * time.Second)},
			{Price: 9, Timestamp: now.Add(7 * time.Second)},
		},
	}

	req, err := NewRequest(KindVolatility, 1, payload)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if err := o.Submit(req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	resp := awaitResponse(t, o, req.ID)
	if resp.Err != "" {
		t.Fatalf("unexpected error: %s", resp.Err)
	}

	var result VolatilityResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Average != 5 || result.Samples != 8 {
		t.Errorf("Average/Samples = %v/%d, want 5/8", result.Average, result.Samples)
	}
	if result.Volatility < 1.99 || result.Volatility > 2.01 {
		t.Errorf("Volatility = %v, want 2", result.Volatility)
	}
}

func TestOffloaderRejectsUnknownKind(t *testing.T) {
	o, cancel := startOffloader(t)
	defer cancel()

	req := Request{ID: "x", Kind: Kind("fourier"), Epoch: 1, Payload: json.RawMessage(`{}`)}
	if err := o.Submit(req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	resp := awaitResponse(t, o, "x")
	if resp.Err == "" {
		t.Error("unknown kind should produce an error response")
	}
}

func TestSubmitReportsBusyWhenQueueFull(t *testing.T) {
	// No Run loop, so nothing drains the queue.
	o := New(slog.Default(), 2)

	a, _ := NewRequest(KindVolatility, 1, VolatilityPayload{PairKey: "a"})
	b, _ := NewRequest(KindVolatility, 1, VolatilityPayload{PairKey: "b"})
	c, _ := NewRequest(KindVolatility, 1, VolatilityPayload{PairKey: "c"})

	if err := o.Submit(a); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if err := o.Submit(b); err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if err := o.Submit(c); err != domain.ErrOffloaderBusy {
		t.Errorf("third submit = %v, want ErrOffloaderBusy", err)
	}
}
