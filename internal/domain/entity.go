package domain

import (
	"time"
)

// FillRecord is one paper fill written to the settlement journal.
type FillRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	MarketID    string    `gorm:"index" json:"market_id"`
	SelectionID int64     `gorm:"index" json:"selection_id"`
	Side        string    `json:"side"`
	Price       string    `json:"price"` // decimal string, exact
	Size        string    `json:"size"`
	Reason      string    `json:"reason"`
	PositionQty string    `json:"position_size"` // size after the fill
	RealizedPnL string    `json:"realized_pnl"`  // cumulative after the fill
	FilledAt    time.Time `gorm:"index" json:"filled_at"`
}

// ClosedMarketRecord is the final snapshot of an evicted market.
type ClosedMarketRecord struct {
	MarketID   string    `gorm:"primaryKey" json:"market_id"`
	ClosedAt   time.Time `gorm:"primaryKey" json:"closed_at"` // a market id may be reused after closure
	LastSeq    int64     `json:"last_seq"`
	Regime     string    `json:"regime"`
	Selections int       `json:"selections"`
	Snapshot   string    `json:"snapshot"`  // JSON encoded final snapshot
	Positions  string    `json:"positions"` // JSON encoded positions settled at close
	CreatedAt  time.Time `json:"created_at"`
}
