package strategy

import (
	"fmt"
	"sort"

	"repricer_go/internal/domain"
	"repricer_go/internal/market"

	"github.com/shopspring/decimal"
)

const (
	NoteNoIntent = "no actionable intent"
	NoteOK       = "ok"
)

// TopOfBookConfig tunes the reference strategy.
type TopOfBookConfig struct {
	MinSize   decimal.Decimal `yaml:"min_size"`
	MaxSpread decimal.Decimal `yaml:"max_spread"`
	StakeSize decimal.Decimal `yaml:"stake_size"`
}

// DefaultTopOfBookConfig returns the reference parameters.
func DefaultTopOfBookConfig() TopOfBookConfig {
	return TopOfBookConfig{
		MinSize:   decimal.NewFromInt(2),
		MaxSpread: decimal.RequireFromString("0.10"),
		StakeSize: decimal.NewFromInt(2),
	}
}

// TopOfBook backs the first selection (by id) with a tight, liquid book.
// A book qualifies when both sides exist, both sizes reach MinSize and
// 0 < lay - back <= MaxSpread. It is stateless.
type TopOfBook struct {
	cfg TopOfBookConfig
}

func NewTopOfBook(cfg TopOfBookConfig) *TopOfBook {
	return &TopOfBook{cfg: cfg}
}

// Decide implements Strategy.
func (s *TopOfBook) Decide(snap market.Snapshot) domain.Decision {
	ids := make([]domain.SelectionID, 0, len(snap.Books))
	for id := range snap.Books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := snap.Books[id]
		if b.BestBack == nil || b.BestLay == nil {
			continue
		}
		if b.BestBack.Size.LessThan(s.cfg.MinSize) || b.BestLay.Size.LessThan(s.cfg.MinSize) {
			continue
		}
		spread := b.BestLay.Price.Sub(b.BestBack.Price)
		if !spread.IsPositive() || spread.GreaterThan(s.cfg.MaxSpread) {
			continue
		}

		intent, err := domain.NewOrderIntent(
			snap.MarketID, id, domain.SideBack, b.BestBack.Price, s.cfg.StakeSize,
			fmt.Sprintf("top-of-book back; spread=%s", spread.StringFixed(3)),
		)
		if err != nil {
			return domain.Decision{Notes: err.Error()}
		}
		return domain.Decision{Intents: []domain.OrderIntent{intent}, Notes: NoteOK}
	}
	return domain.Decision{Notes: NoteNoIntent}
}
