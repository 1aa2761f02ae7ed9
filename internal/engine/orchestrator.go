package engine

import (
	"sort"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/market"
)

// Outcome is the result of routing one event.
// Evicted is set when the market reached Closed; Snapshot is then the final view.
type Outcome struct {
	Snapshot market.Snapshot
	Evicted  bool
}

// Orchestrator owns the live per-market state machines.
// Not thread-safe: all calls must come from the single dispatch goroutine.
type Orchestrator struct {
	reopenCooldown time.Duration
	markets        map[domain.MarketID]*market.State
}

// NewOrchestrator creates an empty registry.
func NewOrchestrator(reopenCooldown time.Duration) *Orchestrator {
	return &Orchestrator{
		reopenCooldown: reopenCooldown,
		markets:        make(map[domain.MarketID]*market.State),
	}
}

// Apply routes ev to its market, creating the state machine on first sight.
// A market that reaches Closed is removed; a later event for the same id
// starts a fresh state machine in the Unknown regime.
func (o *Orchestrator) Apply(ev domain.MarketEvent) (Outcome, error) {
	st, ok := o.markets[ev.MarketID]
	if !ok {
		st = market.NewState(ev.MarketID, o.reopenCooldown)
		o.markets[ev.MarketID] = st
	}

	if err := st.Apply(ev); err != nil {
		return Outcome{}, err
	}

	snap := st.Snapshot()
	if snap.Regime == domain.RegimeClosed {
		delete(o.markets, ev.MarketID)
		return Outcome{Snapshot: snap, Evicted: true}, nil
	}
	return Outcome{Snapshot: snap}, nil
}

// Get returns the live state machine for a market.
func (o *Orchestrator) Get(id domain.MarketID) (*market.State, bool) {
	st, ok := o.markets[id]
	return st, ok
}

// ActiveMarketIDs returns the ids of all live markets, sorted.
func (o *Orchestrator) ActiveMarketIDs() []domain.MarketID {
	ids := make([]domain.MarketID, 0, len(o.markets))
	for id := range o.markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of live markets.
func (o *Orchestrator) Len() int { return len(o.markets) }

// Snapshots returns a snapshot of every live market, keyed by id.
func (o *Orchestrator) Snapshots() map[domain.MarketID]market.Snapshot {
	out := make(map[domain.MarketID]market.Snapshot, len(o.markets))
	for id, st := range o.markets {
		out[id] = st.Snapshot()
	}
	return out
}
