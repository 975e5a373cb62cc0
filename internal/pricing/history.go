package pricing

import (
	"sync"

	"github.com/quantrend/dexarb/internal/domain"
)

// History is a fixed-capacity ring of price points for one pair. Push never
// allocates beyond the capacity chosen at construction; once full it
// overwrites the oldest slot. History is not safe for concurrent use on its
// own; HistorySet provides the synchronized multi-pair view.
type History struct {
	points []domain.PricePoint
	head   int // next write position
	size   int
}

// NewHistory creates a ring holding up to capacity points. capacity < 1 is
// clamped to 1.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{points: make([]domain.PricePoint, capacity)}
}

// Push appends a point in O(1), overwriting the oldest once full.
func (h *History) Push(p domain.PricePoint) {
	h.points[h.head] = p
	h.head = (h.head + 1) % len(h.points)
	if h.size < len(h.points) {
		h.size++
	}
}

// Recent returns up to n points, newest first. The result is a fresh slice.
func (h *History) Recent(n int) []domain.PricePoint {
	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]domain.PricePoint, 0, n)
	idx := h.head - 1
	for i := 0; i < n; i++ {
		if idx < 0 {
			idx = len(h.points) - 1
		}
		out = append(out, h.points[idx])
		idx--
	}
	return out
}

// Len returns the number of stored points.
func (h *History) Len() int {
	return h.size
}

// Capacity returns the fixed ring capacity.
func (h *History) Capacity() int {
	return len(h.points)
}

// HistorySet owns one History ring per monitored pair behind a single
// writer. Readers always receive copies, never the live ring.
type HistorySet struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*History
}

// NewHistorySet creates an empty set whose rings hold capacity points each.
func NewHistorySet(capacity int) *HistorySet {
	if capacity < 1 {
		capacity = 1
	}
	return &HistorySet{
		capacity: capacity,
		rings:    make(map[string]*History),
	}
}

// Capacity returns the per-pair ring capacity.
func (s *HistorySet) Capacity() int { return s.capacity }

// Push records a point for the pair, creating its ring on first use.
func (s *HistorySet) Push(pairKey string, p domain.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.rings[pairKey]
	if !ok {
		ring = NewHistory(s.capacity)
		s.rings[pairKey] = ring
	}
	ring.Push(p)
}

// Recent returns up to n points for the pair, newest first.
func (s *HistorySet) Recent(pairKey string, n int) []domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[pairKey]
	if !ok {
		return nil
	}
	return ring.Recent(n)
}

// Len returns the number of stored points for the pair.
func (s *HistorySet) Len(pairKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[pairKey]
	if !ok {
		return 0
	}
	return ring.Len()
}

// Drop removes the pair's ring, releasing its memory. Called when the pair
// is unsubscribed.
func (s *HistorySet) Drop(pairKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, pairKey)
}

// Pairs returns the keys that currently hold history.
func (s *HistorySet) Pairs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.rings))
	for k := range s.rings {
		out = append(out, k)
	}
	return out
}
