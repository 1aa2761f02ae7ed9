// Package risk clamps and filters order intents against exposure caps.
package risk

import (
	"fmt"

	"repricer_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Config holds the exposure caps. All values are absolute sizes.
type Config struct {
	MaxAbsPosPerSelection decimal.Decimal `yaml:"max_abs_pos_per_selection"`
	MaxAbsPosPerMarket    decimal.Decimal `yaml:"max_abs_pos_per_market"`
	MaxOrderSize          decimal.Decimal `yaml:"max_order_size"`
}

// DefaultConfig returns conservative caps.
func DefaultConfig() Config {
	return Config{
		MaxAbsPosPerSelection: decimal.NewFromInt(10),
		MaxAbsPosPerMarket:    decimal.NewFromInt(30),
		MaxOrderSize:          decimal.NewFromInt(2),
	}
}

// RejectReason explains why an intent did not pass the gate.
type RejectReason string

const (
	RejectInvalid      RejectReason = "invalid"
	RejectZeroSize     RejectReason = "zero_size"
	RejectSelectionCap RejectReason = "selection_cap"
	RejectMarketCap    RejectReason = "market_cap"
)

// Rejection pairs an intent with the reason it was dropped.
type Rejection struct {
	Intent domain.OrderIntent
	Reason RejectReason
}

// Review is the full result of gating one batch.
type Review struct {
	Accepted []domain.OrderIntent
	Rejected []Rejection
}

// Gate is stateless apart from its caps; every call works on its own copy of positions.
type Gate struct {
	cfg Config
}

// NewGate creates a gate with the given caps.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Filter returns the accepted intents of Review.
func (g *Gate) Filter(intents []domain.OrderIntent, positions map[domain.PositionKey]domain.Position) []domain.OrderIntent {
	return g.Review(intents, positions).Accepted
}

// Review processes intents in order against a working copy of positions.
// Accepted intents update the working copy, so one batch cannot jointly
// breach a cap. An intent that strictly reduces exposure is always accepted.
// A missing position counts as flat. Intents that fail validation are
// rejected as invalid. The positions argument is not modified.
func (g *Gate) Review(intents []domain.OrderIntent, positions map[domain.PositionKey]domain.Position) Review {
	work := make(map[domain.PositionKey]decimal.Decimal, len(positions))
	for k, p := range positions {
		work[k] = p.Size
	}

	var out Review
	for _, it := range intents {
		if err := it.Validate(); err != nil {
			out.Rejected = append(out.Rejected, Rejection{Intent: it, Reason: RejectInvalid})
			continue
		}
		size := decimal.Min(it.Size, g.cfg.MaxOrderSize)
		if !size.IsPositive() {
			out.Rejected = append(out.Rejected, Rejection{Intent: it, Reason: RejectZeroSize})
			continue
		}

		key := it.Key()
		cur := work[key]
		next := cur.Add(it.Side.Sign().Mul(size))

		if next.Abs().LessThan(cur.Abs()) {
			out.accept(it, size, "risk-off")
			work[key] = next
			continue
		}

		if next.Abs().GreaterThan(g.cfg.MaxAbsPosPerSelection) {
			out.Rejected = append(out.Rejected, Rejection{Intent: it, Reason: RejectSelectionCap})
			continue
		}
		if grossExposure(work, key, next).GreaterThan(g.cfg.MaxAbsPosPerMarket) {
			out.Rejected = append(out.Rejected, Rejection{Intent: it, Reason: RejectMarketCap})
			continue
		}

		out.accept(it, size, "ok")
		work[key] = next
	}
	return out
}

// grossExposure sums absolute exposure across the key's market, with key at next.
func grossExposure(work map[domain.PositionKey]decimal.Decimal, key domain.PositionKey, next decimal.Decimal) decimal.Decimal {
	total := next.Abs()
	for k, size := range work {
		if k.MarketID != key.MarketID || k == key {
			continue
		}
		total = total.Add(size.Abs())
	}
	return total
}

// accept rebuilds the intent with the clamped size through the validating constructor.
func (r *Review) accept(it domain.OrderIntent, size decimal.Decimal, tag string) {
	reason := fmt.Sprintf("%s | risk:%s", it.Reason, tag)
	if !size.Equal(it.Size) {
		reason = fmt.Sprintf("%s clamp=%s", reason, size.String())
	}
	out, err := domain.NewOrderIntent(it.MarketID, it.SelectionID, it.Side, it.Price, size, reason)
	if err != nil {
		r.Rejected = append(r.Rejected, Rejection{Intent: it, Reason: RejectInvalid})
		return
	}
	r.Accepted = append(r.Accepted, out)
}
