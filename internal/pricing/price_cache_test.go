package pricing

import (
	"fmt"
	"testing"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

func point(price float64) domain.PricePoint {
	return domain.PricePoint{Price: price, Timestamp: time.Now().UTC(), VenueID: "uniswap"}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := NewPriceCache(4, time.Minute)

	c.Put("a", point(1.5))
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for key a")
	}
	if got.Price != 1.5 {
		t.Errorf("Price = %v, want 1.5", got.Price)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewPriceCache(4, 50*time.Millisecond)

	c.Put("a", point(2.0))
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry should be present before the TTL elapses")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should be absent after the TTL elapses")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 after expired entry was dropped", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewPriceCache(3, time.Minute)

	c.Put("a", point(1))
	c.Put("b", point(2))
	c.Put("c", point(3))

	// Touch "a" so "b" becomes the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for key a")
	}

	c.Put("d", point(4))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a was recently read and should have survived the eviction")
	}
	if _, ok := c.Get("d"); !ok {
		t.Error("d was just inserted and should be present")
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestCachePutRefreshesExistingEntry(t *testing.T) {
	c := NewPriceCache(2, time.Minute)

	c.Put("a", point(1))
	c.Put("b", point(2))
	c.Put("a", point(9))
	c.Put("c", point(3))

	// Re-putting "a" made "b" the LRU victim.
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("a should be present")
	}
	if got.Price != 9 {
		t.Errorf("Price = %v, want the refreshed value 9", got.Price)
	}
}

func TestCacheCapacityNeverExceeded(t *testing.T) {
	c := NewPriceCache(5, time.Minute)

	for i := 0; i < 50; i++ {
		c.Put(fmt.Sprintf("key-%d", i), point(float64(i)))
		if c.Len() > 5 {
			t.Fatalf("Len = %d after %d puts, capacity 5 exceeded", c.Len(), i+1)
		}
	}
}
