package domain

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of an intent or fill.
// BACK adds exposure on a selection, LAY removes it.
type Side string

const (
	SideBack Side = "BACK"
	SideLay  Side = "LAY"
)

// Sign returns +1 for BACK and -1 for LAY.
func (s Side) Sign() decimal.Decimal {
	if s == SideLay {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Opposite returns the side that closes exposure opened by s.
func (s Side) Opposite() Side {
	if s == SideBack {
		return SideLay
	}
	return SideBack
}

func (s Side) valid() bool {
	return s == SideBack || s == SideLay
}

// OrderIntent is a proposed trade that has not been risk-checked or applied.
// Build it with NewOrderIntent; to change one field, build a new intent.
type OrderIntent struct {
	MarketID    MarketID        `json:"market_id"`
	SelectionID SelectionID     `json:"selection_id"`
	Side        Side            `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Size        decimal.Decimal `json:"size"`
	Reason      string          `json:"reason"`
}

// NewOrderIntent validates every field: price > 1.0 and size > 0.
func NewOrderIntent(marketID MarketID, selectionID SelectionID, side Side, price, size decimal.Decimal, reason string) (OrderIntent, error) {
	if marketID == "" {
		return OrderIntent{}, NewValidationError("market_id", "", "must not be empty")
	}
	if !side.valid() {
		return OrderIntent{}, NewValidationError("side", string(side), "must be BACK or LAY")
	}
	if !price.GreaterThan(minPrice) {
		return OrderIntent{}, NewValidationError("price", price.String(), "must be > 1.0")
	}
	if !size.IsPositive() {
		return OrderIntent{}, NewValidationError("size", size.String(), "must be > 0")
	}
	return OrderIntent{
		MarketID:    marketID,
		SelectionID: selectionID,
		Side:        side,
		Price:       price,
		Size:        size,
		Reason:      reason,
	}, nil
}

// Validate re-checks an intent that may have been built as a struct literal.
func (i OrderIntent) Validate() error {
	_, err := NewOrderIntent(i.MarketID, i.SelectionID, i.Side, i.Price, i.Size, i.Reason)
	return err
}

// Key returns the position the intent trades against.
func (i OrderIntent) Key() PositionKey {
	return PositionKey{MarketID: i.MarketID, SelectionID: i.SelectionID}
}

// Signed returns the size with the side's sign applied.
func (i OrderIntent) Signed() decimal.Decimal {
	return i.Size.Mul(i.Side.Sign())
}

// Decision is what a strategy proposes for one snapshot.
type Decision struct {
	Intents []OrderIntent
	Notes   string
}
