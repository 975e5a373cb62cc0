package opportunity

// queueItem is one opportunity awaiting an execution slot.
type queueItem struct {
	id     string
	profit float64
	seq    uint64
}

// execQueue holds opportunities admitted for execution but not yet running.
// Pop order depends on the active strategy: discovery order for sequential
// and concurrent, highest profit first for priority. Not safe for concurrent
// use; the manager guards it with its own mutex.
type execQueue struct {
	items   []queueItem
	nextSeq uint64
}

func (q *execQueue) push(id string, profit float64) {
	q.items = append(q.items, queueItem{id: id, profit: profit, seq: q.nextSeq})
	q.nextSeq++
}

// pop removes and returns the next id. byProfit selects the highest profit
// percentage, ties broken by earlier discovery; otherwise FIFO.
func (q *execQueue) pop(byProfit bool) (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	best := 0
	if byProfit {
		for i := 1; i < len(q.items); i++ {
			if q.items[i].profit > q.items[best].profit {
				best = i
			}
		}
	}
	id := q.items[best].id
	q.items = append(q.items[:best], q.items[best+1:]...)
	return id, true
}

func (q *execQueue) remove(id string) bool {
	for i := range q.items {
		if q.items[i].id == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *execQueue) len() int { return len(q.items) }
