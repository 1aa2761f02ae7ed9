package domain

import (
	"strconv"
	"time"
)

// MarketEvent is one normalized, sequenced update for a market.
// Seq is scoped to MarketID and monotonic. Books may be partial; they are
// merged into the stored book by selection id.
type MarketEvent struct {
	MarketID   MarketID
	Seq        int64
	ObservedAt time.Time
	Books      []InstrumentBook

	MarketOpen Signal // true / false / unknown
	InPlay     Signal // true / unknown, never false
	Closed     Signal // true / unknown, never false
}

// NewMarketEvent validates and builds a MarketEvent.
// The books slice is copied so the event stays immutable once built.
func NewMarketEvent(marketID MarketID, seq int64, observedAt time.Time, books []InstrumentBook, open, inPlay, closed Signal) (MarketEvent, error) {
	if marketID == "" {
		return MarketEvent{}, NewValidationError("market_id", "", "must not be empty")
	}
	if seq < 0 {
		return MarketEvent{}, NewValidationError("seq", strconv.FormatInt(seq, 10), "must be >= 0")
	}
	if observedAt.IsZero() {
		return MarketEvent{}, NewValidationError("observed_at", "", "must be set")
	}
	if inPlay.IsFalse() {
		return MarketEvent{}, NewValidationError("in_play", inPlay.String(), "is never reported as false")
	}
	if closed.IsFalse() {
		return MarketEvent{}, NewValidationError("closed", closed.String(), "is never reported as false")
	}
	for _, b := range books {
		if err := validateLevel("best_back", b.BestBack); err != nil {
			return MarketEvent{}, err
		}
		if err := validateLevel("best_lay", b.BestLay); err != nil {
			return MarketEvent{}, err
		}
	}

	cp := make([]InstrumentBook, len(books))
	copy(cp, books)
	return MarketEvent{
		MarketID:   marketID,
		Seq:        seq,
		ObservedAt: observedAt,
		Books:      cp,
		MarketOpen: open,
		InPlay:     inPlay,
		Closed:     closed,
	}, nil
}

// validateLevel re-checks a level that may have been built as a struct literal.
func validateLevel(field string, ps *PriceSize) error {
	if ps == nil {
		return nil
	}
	if _, err := NewPriceSize(ps.Price, ps.Size); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.Field = field + "." + ve.Field
		}
		return err
	}
	return nil
}
