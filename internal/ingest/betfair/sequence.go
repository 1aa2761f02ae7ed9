package betfair

import (
	"sync"

	"repricer_go/internal/domain"
)

// SeqCounter hands out per-market sequence numbers starting at 1 for sources
// that carry none of their own.
type SeqCounter struct {
	mu   sync.Mutex
	next map[domain.MarketID]int64
}

// NewSeqCounter creates an empty counter.
func NewSeqCounter() *SeqCounter {
	return &SeqCounter{next: make(map[domain.MarketID]int64)}
}

// Next returns the next sequence for id.
func (c *SeqCounter) Next(id domain.MarketID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next[id]++
	return c.next[id]
}

// Forget drops the counter of a closed market. A reused id restarts at 1,
// which is what a freshly created state machine expects.
func (c *SeqCounter) Forget(id domain.MarketID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.next, id)
}
