package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MarketID identifies a tradable market (e.g. "1.234567").
type MarketID string

// SelectionID identifies one instrument (runner) inside a market.
type SelectionID int64

// PositionKey addresses a position held on one selection of one market.
type PositionKey struct {
	MarketID    MarketID
	SelectionID SelectionID
}

// String renders the key as "market:selection" for logs and snapshots.
func (k PositionKey) String() string {
	return string(k.MarketID) + ":" + strconv.FormatInt(int64(k.SelectionID), 10)
}

// minPrice is the exclusive lower bound for any quoted price (decimal odds).
var minPrice = decimal.NewFromInt(1)

// PriceSize is one validated top-of-book level.
// Construct it with NewPriceSize; the zero value is not a valid level.
type PriceSize struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// NewPriceSize validates price > 1.0 and size >= 0.
func NewPriceSize(price, size decimal.Decimal) (PriceSize, error) {
	if !price.GreaterThan(minPrice) {
		return PriceSize{}, NewValidationError("price", price.String(), "must be > 1.0")
	}
	if size.IsNegative() {
		return PriceSize{}, NewValidationError("size", size.String(), "must be >= 0")
	}
	return PriceSize{Price: price, Size: size}, nil
}

// MustPriceSize is NewPriceSize for fixtures and literals known to be valid.
func MustPriceSize(price, size float64) PriceSize {
	ps, err := NewPriceSize(decimal.NewFromFloat(price), decimal.NewFromFloat(size))
	if err != nil {
		panic(err)
	}
	return ps
}

// InstrumentBook is the best-effort top-of-book view of one selection.
// A nil side means the venue offered nothing on it.
type InstrumentBook struct {
	SelectionID SelectionID `json:"selection_id"`
	BestBack    *PriceSize  `json:"best_back,omitempty"`
	BestLay     *PriceSize  `json:"best_lay,omitempty"`
}

// Clone returns a copy that shares no level pointers with b.
func (b InstrumentBook) Clone() InstrumentBook {
	out := InstrumentBook{SelectionID: b.SelectionID}
	if b.BestBack != nil {
		back := *b.BestBack
		out.BestBack = &back
	}
	if b.BestLay != nil {
		lay := *b.BestLay
		out.BestLay = &lay
	}
	return out
}

// Signal is a tri-state flag: true, false or not reported.
type Signal int8

const (
	SignalUnknown Signal = iota
	SignalTrue
	SignalFalse
)

func (s Signal) IsTrue() bool  { return s == SignalTrue }
func (s Signal) IsFalse() bool { return s == SignalFalse }

func (s Signal) String() string {
	switch s {
	case SignalTrue:
		return "true"
	case SignalFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Now returns the current UTC time.
func Now() time.Time { return time.Now().UTC() }
