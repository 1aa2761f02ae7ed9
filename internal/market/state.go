// Package market holds the authoritative per-market state machine.
package market

import (
	"time"

	"repricer_go/internal/domain"
)

// NoSequence is the last-applied sequence of a state that has seen no event.
const NoSequence int64 = -1

// Snapshot is a point-in-time copy of a market's observable state.
// It shares nothing mutable with the State it was taken from.
type Snapshot struct {
	MarketID      domain.MarketID                              `json:"market_id"`
	LastSeq       int64                                        `json:"last_seq"`
	LastObserved  time.Time                                    `json:"last_observed"` // zero until the first event
	Regime        domain.Regime                                `json:"regime"`
	CooldownUntil time.Time                                    `json:"cooldown_until"` // zero when no cooldown is armed
	Books         map[domain.SelectionID]domain.InstrumentBook `json:"books"`
}

// Book returns the merged book for a selection.
func (s Snapshot) Book(id domain.SelectionID) (domain.InstrumentBook, bool) {
	b, ok := s.Books[id]
	return b, ok
}

// State is the in-memory regime tracker for a single market.
//
// Invariants:
//   - seq never decreases; a repeated seq is a no-op, a lower one is rejected
//   - once Closed, no event mutates the state
//   - once InPlay, no event moves the regime back to Open or Suspended
//   - execution is only allowed in Open, after any reopen cooldown
//
// Not thread-safe. Exactly one owner applies events to it.
type State struct {
	marketID       domain.MarketID
	reopenCooldown time.Duration

	lastSeq       int64
	lastObserved  time.Time
	regime        domain.Regime
	cooldownUntil time.Time
	books         map[domain.SelectionID]domain.InstrumentBook
}

// NewState creates a state in the Unknown regime.
func NewState(marketID domain.MarketID, reopenCooldown time.Duration) *State {
	return &State{
		marketID:       marketID,
		reopenCooldown: reopenCooldown,
		lastSeq:        NoSequence,
		regime:         domain.RegimeUnknown,
		books:          make(map[domain.SelectionID]domain.InstrumentBook),
	}
}

// MarketID returns the owning market id.
func (s *State) MarketID() domain.MarketID { return s.marketID }

// Regime returns the current regime.
func (s *State) Regime() domain.Regime { return s.regime }

// Apply merges one event into the state.
//
// Regime rules are evaluated in a fixed priority:
//  1. in_play=true forces InPlay
//  2. unless InPlay: open=true from Unknown/Suspended arms the cooldown and opens;
//     open=true while Open changes nothing; open=false suspends
//  3. closed=true forces Closed
func (s *State) Apply(ev domain.MarketEvent) error {
	if ev.MarketID != s.marketID {
		return domain.ErrMarketMismatch
	}
	if s.regime == domain.RegimeClosed {
		return nil
	}
	if ev.Seq == s.lastSeq {
		return nil
	}
	if ev.Seq < s.lastSeq {
		return &domain.OrderingError{MarketID: s.marketID, Seq: ev.Seq, LastSeq: s.lastSeq}
	}

	s.lastSeq = ev.Seq
	s.lastObserved = ev.ObservedAt

	if ev.InPlay.IsTrue() {
		s.regime = domain.RegimeInPlay
	} else if !s.regime.IsTerminal() {
		switch {
		case ev.MarketOpen.IsTrue() && (s.regime == domain.RegimeUnknown || s.regime == domain.RegimeSuspended):
			s.cooldownUntil = ev.ObservedAt.Add(s.reopenCooldown)
			s.regime = domain.RegimeOpen
		case ev.MarketOpen.IsFalse():
			s.regime = domain.RegimeSuspended
		}
	}
	if ev.Closed.IsTrue() {
		s.regime = domain.RegimeClosed
	}

	for _, b := range ev.Books {
		s.books[b.SelectionID] = b.Clone()
	}
	return nil
}

// CanExecute is the hard execution gate: Open and past any reopen cooldown.
func (s *State) CanExecute(now time.Time) bool {
	if s.regime != domain.RegimeOpen {
		return false
	}
	return s.cooldownUntil.IsZero() || !now.Before(s.cooldownUntil)
}

// AssertSafeToExecute fails with UnsafeRegimeError when CanExecute is false.
func (s *State) AssertSafeToExecute(now time.Time) error {
	if s.CanExecute(now) {
		return nil
	}
	return &domain.UnsafeRegimeError{
		MarketID: s.marketID,
		Regime:   s.regime,
		Cooldown: s.regime == domain.RegimeOpen,
	}
}

// AssertFresh fails with StaleDataError when no event was applied yet or the
// last observation is older than maxAge. It never mutates state.
func (s *State) AssertFresh(maxAge time.Duration, now time.Time) error {
	if s.lastSeq == NoSequence {
		return &domain.StaleDataError{MarketID: s.marketID, NoData: true, MaxAge: maxAge}
	}
	if age := now.Sub(s.lastObserved); age > maxAge {
		return &domain.StaleDataError{MarketID: s.marketID, Age: age, MaxAge: maxAge}
	}
	return nil
}

// Snapshot returns a read-only copy of the observable fields.
func (s *State) Snapshot() Snapshot {
	books := make(map[domain.SelectionID]domain.InstrumentBook, len(s.books))
	for id, b := range s.books {
		books[id] = b.Clone()
	}
	return Snapshot{
		MarketID:      s.marketID,
		LastSeq:       s.lastSeq,
		LastObserved:  s.lastObserved,
		Regime:        s.regime,
		CooldownUntil: s.cooldownUntil,
		Books:         books,
	}
}
