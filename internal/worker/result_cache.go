package worker

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// resultCache is the offloader's bounded LRU of recent computation results.
// Entries expire after a short TTL; at capacity the least-recently-used
// entry is evicted.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
}

type resultEntry struct {
	key        string
	result     json.RawMessage
	insertedAt time.Time
}

func newResultCache(capacity int, ttl time.Duration) *resultCache {
	if capacity < 1 {
		capacity = 1
	}
	return &resultCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *resultCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*resultEntry)
	if c.ttl > 0 && time.Since(ent.insertedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return ent.result, true
}

func (c *resultCache) put(key string, result json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*resultEntry)
		ent.result = result
		ent.insertedAt = time.Now()
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			ent := oldest.Value.(*resultEntry)
			c.order.Remove(oldest)
			delete(c.items, ent.key)
		}
	}

	el := c.order.PushFront(&resultEntry{key: key, result: result, insertedAt: time.Now()})
	c.items[key] = el
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
