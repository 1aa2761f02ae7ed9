// Package execution applies accepted intents as paper fills and keeps the position ledger.
package execution

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"repricer_go/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultFillHistory = 1000

// Fill is one intent assumed filled in full at its limit price.
type Fill struct {
	ID          uuid.UUID          `json:"id"`
	MarketID    domain.MarketID    `json:"market_id"`
	SelectionID domain.SelectionID `json:"selection_id"`
	Side        domain.Side        `json:"side"`
	Price       decimal.Decimal    `json:"price"`
	Size        decimal.Decimal    `json:"size"`
	Reason      string             `json:"reason"`
	FilledAt    time.Time          `json:"filled_at"`
	Position    domain.Position    `json:"position"` // position after the fill
}

// IntentFilter is the risk check run under the ledger lock.
type IntentFilter interface {
	Filter(intents []domain.OrderIntent, positions map[domain.PositionKey]domain.Position) []domain.OrderIntent
}

// Ledger owns all positions. It is safe for concurrent use; Submit holds the
// lock across filtering and fill application.
type Ledger struct {
	mu          sync.RWMutex
	positions   map[domain.PositionKey]domain.Position
	fills       []Fill
	fillHistory int
	logger      *slog.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		positions:   make(map[domain.PositionKey]domain.Position),
		fillHistory: defaultFillHistory,
		logger:      logger,
	}
}

// Submit filters intents against the current positions and applies the
// accepted ones, all under one lock.
func (l *Ledger) Submit(filter IntentFilter, intents []domain.OrderIntent, at time.Time) []Fill {
	if len(intents) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accepted := filter.Filter(intents, l.positions)
	return l.applyLocked(accepted, at)
}

func (l *Ledger) applyLocked(intents []domain.OrderIntent, at time.Time) []Fill {
	fills := make([]Fill, 0, len(intents))
	for _, it := range intents {
		key := it.Key()
		pos := l.positions[key]
		before := pos.Size
		if pos.ApplyFill(it.Side, it.Price, it.Size) {
			l.logger.Warn("Fill crossed zero; excess kept on reducing leg",
				slog.String("key", key.String()),
				slog.String("before", before.String()),
				slog.String("after", pos.Size.String()),
			)
		}
		l.positions[key] = pos

		f := Fill{
			ID:          uuid.New(),
			MarketID:    it.MarketID,
			SelectionID: it.SelectionID,
			Side:        it.Side,
			Price:       it.Price,
			Size:        it.Size,
			Reason:      it.Reason,
			FilledAt:    at,
			Position:    pos,
		}
		fills = append(fills, f)
		l.fills = append(l.fills, f)
	}
	if over := len(l.fills) - l.fillHistory; over > 0 {
		l.fills = append([]Fill(nil), l.fills[over:]...)
	}
	return fills
}

// MarketPositions returns a copy of the positions held in one market.
func (l *Ledger) MarketPositions(id domain.MarketID) map[domain.PositionKey]domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[domain.PositionKey]domain.Position)
	for k, p := range l.positions {
		if k.MarketID == id {
			out[k] = p
		}
	}
	return out
}

// Settle removes and returns every position of a closed market, so a reused
// market id starts flat. Fill history is kept.
func (l *Ledger) Settle(id domain.MarketID) map[domain.PositionKey]domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[domain.PositionKey]domain.Position)
	for k, p := range l.positions {
		if k.MarketID == id {
			out[k] = p
			delete(l.positions, k)
		}
	}
	return out
}

// Snapshot returns all positions keyed "market:selection".
func (l *Ledger) Snapshot() map[string]domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]domain.Position, len(l.positions))
	for k, p := range l.positions {
		out[k.String()] = p
	}
	return out
}

// Fills returns the most recent fills, oldest first.
func (l *Ledger) Fills() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Fill(nil), l.fills...)
}

// Valuation is a position marked against the current book.
type Valuation struct {
	Key        string          `json:"key"`
	Size       decimal.Decimal `json:"size"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
	Total      decimal.Decimal `json:"total"`
}

// Valuations marks every position of a market against books, sorted by key.
func (l *Ledger) Valuations(id domain.MarketID, books map[domain.SelectionID]domain.InstrumentBook) []Valuation {
	positions := l.MarketPositions(id)
	out := make([]Valuation, 0, len(positions))
	for k, p := range positions {
		u := MarkToMarket(p, books[k.SelectionID])
		out = append(out, Valuation{
			Key:        k.String(),
			Size:       p.Size,
			AvgPrice:   p.AvgPrice,
			Realized:   p.RealizedPnL,
			Unrealized: u,
			Total:      p.RealizedPnL.Add(u),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// MarkToMarket returns unrealized PnL: size * (mark - avg).
// Longs mark on best lay, shorts on best back; a missing side yields zero.
func MarkToMarket(p domain.Position, book domain.InstrumentBook) decimal.Decimal {
	var mark *domain.PriceSize
	switch {
	case p.IsLong():
		mark = book.BestLay
	case p.IsShort():
		mark = book.BestBack
	}
	if mark == nil {
		return decimal.Zero
	}
	return p.Size.Mul(mark.Price.Sub(p.AvgPrice))
}
