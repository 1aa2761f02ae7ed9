// Package exit turns unrealized edge on open positions into closing intents.
package exit

import (
	"fmt"
	"log/slog"
	"sort"

	"repricer_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Config holds the close thresholds, in price units of edge.
type Config struct {
	TakeProfitDelta decimal.Decimal `yaml:"take_profit_delta"`
	StopLossDelta   decimal.Decimal `yaml:"stop_loss_delta"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		TakeProfitDelta: decimal.RequireFromString("0.10"),
		StopLossDelta:   decimal.RequireFromString("0.10"),
	}
}

// Policy is the close rule. It holds no state between calls.
type Policy struct {
	cfg    Config
	logger *slog.Logger
}

func NewPolicy(cfg Config, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{cfg: cfg, logger: logger.With("module", "exit")}
}

// DecideCloses evaluates every nonzero position of marketID independently.
//
// A long is marked and closed with a LAY at best lay; a short with a BACK at
// best back. Positions whose closing side is missing are skipped.
// Edge >= take profit closes with "take_profit"; edge <= -stop loss closes
// with "stop_loss". Intents are ordered by selection id.
func (p *Policy) DecideCloses(
	marketID domain.MarketID,
	positions map[domain.PositionKey]domain.Position,
	books map[domain.SelectionID]domain.InstrumentBook,
) []domain.OrderIntent {
	keys := make([]domain.PositionKey, 0, len(positions))
	for k, pos := range positions {
		if k.MarketID == marketID && !pos.IsFlat() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].SelectionID < keys[j].SelectionID })

	var out []domain.OrderIntent
	for _, k := range keys {
		pos := positions[k]
		book, ok := books[k.SelectionID]
		if !ok {
			continue
		}

		opened := domain.SideLay
		if pos.IsLong() {
			opened = domain.SideBack
		}
		side := opened.Opposite()

		level := book.BestBack
		if side == domain.SideLay {
			level = book.BestLay
		}
		if level == nil {
			continue
		}
		edge := level.Price.Sub(pos.AvgPrice).Mul(opened.Sign())

		var rule string
		switch {
		case edge.GreaterThanOrEqual(p.cfg.TakeProfitDelta):
			rule = "take_profit"
		case edge.LessThanOrEqual(p.cfg.StopLossDelta.Neg()):
			rule = "stop_loss"
		default:
			continue
		}

		intent, err := domain.NewOrderIntent(
			marketID, k.SelectionID, side, level.Price, pos.Exposure(),
			fmt.Sprintf("close_rule: %s edge=%s", rule, edge.StringFixed(3)),
		)
		if err != nil {
			p.logger.Warn("Close intent dropped",
				slog.String("key", k.String()),
				slog.String("rule", rule),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, intent)
	}
	return out
}
