package pricing

import (
	"testing"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

func seqPoint(i int, base time.Time) domain.PricePoint {
	return domain.PricePoint{
		Price:     float64(i),
		Timestamp: base.Add(time.Duration(i) * time.Second),
		VenueID:   "uniswap",
	}
}

func TestHistoryBoundAfterOverflow(t *testing.T) {
	const capacity = 8
	base := time.Now().UTC()
	h := NewHistory(capacity)

	// Push capacity+5 points; the 5 oldest must be discarded.
	for i := 0; i < capacity+5; i++ {
		h.Push(seqPoint(i, base))
	}

	if h.Len() != capacity {
		t.Fatalf("Len = %d, want %d", h.Len(), capacity)
	}

	recent := h.Recent(capacity)
	if len(recent) != capacity {
		t.Fatalf("Recent(%d) returned %d points", capacity, len(recent))
	}

	// Newest first: prices 12, 11, ..., 5.
	for i, p := range recent {
		want := float64(capacity + 4 - i)
		if p.Price != want {
			t.Errorf("recent[%d].Price = %v, want %v", i, p.Price, want)
		}
	}

	// The oldest surviving point is 5; 0..4 were overwritten.
	oldest := recent[len(recent)-1]
	if oldest.Price != 5 {
		t.Errorf("oldest surviving price = %v, want 5", oldest.Price)
	}
}

func TestHistoryRecentClampsToSize(t *testing.T) {
	base := time.Now().UTC()
	h := NewHistory(16)
	for i := 0; i < 3; i++ {
		h.Push(seqPoint(i, base))
	}

	recent := h.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("Recent(10) returned %d points, want 3", len(recent))
	}
	if recent[0].Price != 2 || recent[2].Price != 0 {
		t.Errorf("unexpected order: got %v, %v, %v", recent[0].Price, recent[1].Price, recent[2].Price)
	}

	if got := h.Recent(0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
}

func TestHistorySetIsolatesPairs(t *testing.T) {
	base := time.Now().UTC()
	s := NewHistorySet(4)

	s.Push("weth:usdc", seqPoint(1, base))
	s.Push("weth:usdc", seqPoint(2, base))
	s.Push("wbtc:usdc", seqPoint(3, base))

	if got := s.Len("weth:usdc"); got != 2 {
		t.Errorf("Len(weth:usdc) = %d, want 2", got)
	}
	if got := s.Len("wbtc:usdc"); got != 1 {
		t.Errorf("Len(wbtc:usdc) = %d, want 1", got)
	}

	recent := s.Recent("weth:usdc", 5)
	if len(recent) != 2 || recent[0].Price != 2 {
		t.Errorf("Recent(weth:usdc) = %+v, want newest-first [2 1]", recent)
	}

	s.Drop("weth:usdc")
	if got := s.Len("weth:usdc"); got != 0 {
		t.Errorf("Len after Drop = %d, want 0", got)
	}
	if got := s.Len("wbtc:usdc"); got != 1 {
		t.Errorf("Drop removed the wrong pair, Len(wbtc:usdc) = %d", got)
	}
}

func TestHistorySetRecentReturnsCopy(t *testing.T) {
	base := time.Now().UTC()
	s := NewHistorySet(4)
	s.Push("weth:usdc", seqPoint(1, base))

	first := s.Recent("weth:usdc", 1)
	first[0].Price = 999

	second := s.Recent("weth:usdc", 1)
	if second[0].Price != 1 {
		t.Error("mutating a Recent result must not affect stored history")
	}
}
