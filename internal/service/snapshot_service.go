// Package service keeps a concurrent read view of the engine for external readers.
package service

import (
	"sort"
	"sync"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/execution"
	"repricer_go/internal/market"
)

const defaultClosedHistory = 50

// MarketView is the latest published state of one live market.
type MarketView struct {
	Snapshot   market.Snapshot       `json:"snapshot"`
	Valuations []execution.Valuation `json:"valuations,omitempty"`
	Notes      string                `json:"notes,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// ClosedView is the final snapshot of an evicted market with the positions
// settled at eviction, keyed "market:selection".
type ClosedView struct {
	Snapshot market.Snapshot            `json:"snapshot"`
	Settled  map[string]domain.Position `json:"settled,omitempty"`
	ClosedAt time.Time                  `json:"closed_at"`
}

// SnapshotService is written by the pipeline goroutine and read by any number of readers.
type SnapshotService struct {
	mu      sync.RWMutex
	live    map[domain.MarketID]MarketView
	closed  []ClosedView // oldest first
	history int
}

// NewSnapshotService keeps up to history closed markets (default 50 when <= 0).
func NewSnapshotService(history int) *SnapshotService {
	if history <= 0 {
		history = defaultClosedHistory
	}
	return &SnapshotService{
		live:    make(map[domain.MarketID]MarketView),
		history: history,
	}
}

// Update replaces the view of a live market.
func (s *SnapshotService) Update(v MarketView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[v.Snapshot.MarketID] = v
}

// Evict moves a market from the live set to the closed history.
func (s *SnapshotService) Evict(final market.Snapshot, settled map[string]domain.Position, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.live, final.MarketID)
	s.closed = append(s.closed, ClosedView{Snapshot: final, Settled: settled, ClosedAt: at})
	if over := len(s.closed) - s.history; over > 0 {
		s.closed = append([]ClosedView(nil), s.closed[over:]...)
	}
}

// Get returns the view of one live market.
func (s *SnapshotService) Get(id domain.MarketID) (MarketView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.live[id]
	return v, ok
}

// GetAll returns every live market view sorted by market id.
func (s *SnapshotService) GetAll() []MarketView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]MarketView, 0, len(s.live))
	for _, v := range s.live {
		result = append(result, v)
	}

	// Sort by market id for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Snapshot.MarketID < result[j].Snapshot.MarketID
	})
	return result
}

// Closed returns the closed history, newest first.
func (s *SnapshotService) Closed() []ClosedView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ClosedView, len(s.closed))
	for i, v := range s.closed {
		out[len(s.closed)-1-i] = v
	}
	return out
}
