package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantrend/dexarb/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBus records published channels and stream appends.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed[stream] = append(f.streamed[stream], payload)
	return nil
}

func (f *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (f *fakeBus) StreamRecent(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func sampleOpportunity() *domain.ArbitrageOpportunity {
	return &domain.ArbitrageOpportunity{
		ID:               "opp-1",
		TokenIn:          domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6},
		TokenOut:         domain.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18},
		SourceVenue:      "uniswap",
		TargetVenue:      "sushiswap",
		ProfitPercentage: 3.0,
		EstimatedProfit:  0.3,
		Status:           domain.OpportunityPending,
		RiskLevel:        domain.RiskLow,
	}
}

func TestPublishFansOutToBus(t *testing.T) {
	bus := newFakeBus()

	p := NewPublisher(discard())
	p.SetBus(bus)

	p.Publish(context.Background(), domain.Event{
		Type:        domain.EventOpportunityFound,
		At:          time.Now().UTC(),
		Opportunity: sampleOpportunity(),
	})

	channel := Channel(domain.EventOpportunityFound)
	if channel != "events:opportunity_found" {
		t.Fatalf("channel = %s", channel)
	}
	if len(bus.published[channel]) != 1 {
		t.Fatalf("bus got %d payloads on %s, want 1", len(bus.published[channel]), channel)
	}
	if len(bus.streamed[AuditStream]) != 1 {
		t.Fatalf("audit stream got %d entries, want 1", len(bus.streamed[AuditStream]))
	}

	var env Envelope
	if err := json.Unmarshal(bus.published[channel][0], &env); err != nil {
		t.Fatalf("published payload is not an envelope: %v", err)
	}
	if env.Type != "opportunity_found" {
		t.Errorf("envelope type = %s", env.Type)
	}
	if env.Opportunity == nil || env.Opportunity.ID != "opp-1" {
		t.Errorf("envelope opportunity = %+v", env.Opportunity)
	}
	if env.Opportunity.TokenIn.Address != "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48" {
		t.Errorf("token address not lowercased: %s", env.Opportunity.TokenIn.Address)
	}
}

func TestPriceTicksSkipAuditStream(t *testing.T) {
	bus := newFakeBus()
	p := NewPublisher(discard())
	p.SetBus(bus)

	p.Publish(context.Background(), domain.Event{
		Type:   domain.EventPriceTick,
		At:     time.Now().UTC(),
		Detail: map[string]any{"venue": "uniswap", "price": 0.0005},
	})

	if len(bus.published["events:price_tick"]) != 1 {
		t.Error("price tick must still reach pub/sub")
	}
	if len(bus.streamed[AuditStream]) != 0 {
		t.Error("price tick must not be appended to the audit stream")
	}
}

func TestPublishWithoutSinksIsSafe(t *testing.T) {
	p := NewPublisher(discard())
	// Must not panic with nothing attached.
	p.Publish(context.Background(), domain.Event{Type: domain.EventMonitorStarted, At: time.Now()})
}

func TestRenderEventCoversLifecycle(t *testing.T) {
	opp := sampleOpportunity()

	cases := []struct {
		ev       domain.Event
		wantOK   bool
		wantWord string
	}{
		{domain.Event{Type: domain.EventOpportunityFound, Opportunity: opp}, true, "USDC/WETH"},
		{domain.Event{Type: domain.EventExecutionCompleted, Opportunity: opp, Detail: map[string]any{"txRef": "0xabc"}}, true, "0xabc"},
		{domain.Event{Type: domain.EventExecutionFailed, Opportunity: opp, Detail: map[string]any{"reason": "revert"}}, true, "revert"},
		{domain.Event{Type: domain.EventCircuitOpen, Detail: map[string]any{"threshold": 3}}, true, "3"},
		{domain.Event{Type: domain.EventPriceTick}, false, ""},
		{domain.Event{Type: domain.EventOpportunityFound}, false, ""}, // no opportunity attached
	}

	for _, tc := range cases {
		title, message, ok := renderEvent(tc.ev)
		if ok != tc.wantOK {
			t.Errorf("%s: ok = %v, want %v", tc.ev.Type, ok, tc.wantOK)
			continue
		}
		if ok && tc.wantWord != "" && !strings.Contains(title+message, tc.wantWord) {
			t.Errorf("%s: rendered %q / %q, missing %q", tc.ev.Type, title, message, tc.wantWord)
		}
	}
}
