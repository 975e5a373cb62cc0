// Package pricing owns the bounded in-memory price state: the LRU+TTL quote
// cache, per-pair ring-buffer histories, and the statistics computed over
// them. All structures here are size-bounded regardless of run duration.
package pricing

import (
	"container/list"
	"sync"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// PriceCache caches the most recent quote per (venue, pair) key with both a
// TTL and an LRU capacity bound. Get refreshes recency; entries older than
// the TTL are treated as absent and removed on access.
type PriceCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

type cacheEntry struct {
	key        string
	point      domain.PricePoint
	insertedAt time.Time
}

// NewPriceCache creates a cache bounded to capacity entries with the given
// TTL. capacity < 1 is clamped to 1; a non-positive ttl disables expiry.
func NewPriceCache(capacity int, ttl time.Duration) *PriceCache {
	if capacity < 1 {
		capacity = 1
	}
	return &PriceCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached point for key. A hit moves the entry to the front
// of the recency order. Entries past the TTL are evicted and reported as
// absent.
func (c *PriceCache) Get(key string) (domain.PricePoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return domain.PricePoint{}, false
	}

	ent := el.Value.(*cacheEntry)
	if c.expired(ent, time.Now()) {
		c.remove(el)
		return domain.PricePoint{}, false
	}

	c.order.MoveToFront(el)
	return ent.point, true
}

// Put stores the point under key, resetting its TTL clock. When the cache
// is at capacity the least-recently-used entry is evicted to make room.
func (c *PriceCache) Put(key string, p domain.PricePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.point = p
		ent.insertedAt = now
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}

	el := c.order.PushFront(&cacheEntry{key: key, point: p, insertedAt: now})
	c.items[key] = el
}

// Len returns the number of live entries, counting expired ones that have
// not been touched since expiry.
func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge drops every entry.
func (c *PriceCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.capacity)
}

func (c *PriceCache) expired(ent *cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(ent.insertedAt) > c.ttl
}

// remove deletes the element from both the order list and the index. Callers
// must hold mu.
func (c *PriceCache) remove(el *list.Element) {
	ent := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.items, ent.key)
}

// CacheKey builds the (venue, pair) cache key.
func CacheKey(venueID, pairKey string) string {
	return venueID + "|" + pairKey
}
