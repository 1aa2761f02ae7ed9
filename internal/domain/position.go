package domain

import "github.com/shopspring/decimal"

// Position is the signed exposure held on one selection.
// Size is positive for net BACK (long) and negative for net LAY (short).
type Position struct {
	Size        decimal.Decimal `json:"size"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// IsLong checks if the position is Long.
func (p Position) IsLong() bool {
	return p.Size.IsPositive()
}

// IsShort checks if the position is Short.
func (p Position) IsShort() bool {
	return p.Size.IsNegative()
}

// IsFlat returns true if position has no exposure
func (p Position) IsFlat() bool {
	return p.Size.IsZero()
}

// Exposure is the absolute size, used for cap enforcement.
func (p Position) Exposure() decimal.Decimal {
	return p.Size.Abs()
}

// ApplyFill books a fill against the position.
//
// A fill against existing exposure realizes PnL on the closed portion:
// min(|size|, |fill|) * (price - avg) * sign(size). The whole fill is added to
// size; the average resets to zero only when the result is exactly flat.
// A fill through zero keeps the prior average on the flipped remainder.
// A fill in the same direction (or from flat) re-blends the average.
//
// It returns true when the fill crossed through zero.
func (p *Position) ApplyFill(side Side, price, size decimal.Decimal) (flipped bool) {
	signed := size.Mul(side.Sign())

	if !p.Size.IsZero() && p.Size.Sign() != signed.Sign() {
		closing := decimal.Min(p.Size.Abs(), signed.Abs())
		direction := decimal.NewFromInt(int64(p.Size.Sign()))
		p.RealizedPnL = p.RealizedPnL.Add(closing.Mul(price.Sub(p.AvgPrice)).Mul(direction))

		before := p.Size
		p.Size = p.Size.Add(signed)
		if p.Size.IsZero() {
			p.AvgPrice = decimal.Zero
			return false
		}
		return before.Sign() != p.Size.Sign()
	}

	next := p.Size.Add(signed)
	if p.Size.IsZero() {
		p.AvgPrice = price
	} else {
		p.AvgPrice = p.AvgPrice.Mul(p.Size).Add(price.Mul(signed)).Div(next)
	}
	p.Size = next
	return false
}
