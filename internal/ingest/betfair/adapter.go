// Package betfair turns Betfair-shaped market books into domain.MarketEvent
// values and feeds them to the sequencer, either by REST polling or from a
// websocket relay of market images.
package betfair

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repricer_go/internal/domain"
)

// Sink receives normalized events. engine.Sequencer.Submit satisfies it.
type Sink func(ctx context.Context, ev domain.MarketEvent) error

// EventFromBook normalizes one market book.
//
// Status mapping fails closed: an unrecognized status leaves both the open and
// closed signals unknown. In-play is only ever reported as true.
// Only the best level of each ladder is kept.
func EventFromBook(book MarketBook, seq int64, observedAt time.Time) (domain.MarketEvent, error) {
	open, closed := statusSignals(book.Status)

	inPlay := domain.SignalUnknown
	if book.InPlay != nil && *book.InPlay {
		inPlay = domain.SignalTrue
	}

	books := make([]domain.InstrumentBook, 0, len(book.Runners))
	for _, r := range book.Runners {
		ib := domain.InstrumentBook{SelectionID: domain.SelectionID(r.SelectionID)}

		back, err := bestLevel(r.Ex.AvailableToBack)
		if err != nil {
			return domain.MarketEvent{}, fmt.Errorf("market %s selection %d back: %w", book.MarketID, r.SelectionID, err)
		}
		lay, err := bestLevel(r.Ex.AvailableToLay)
		if err != nil {
			return domain.MarketEvent{}, fmt.Errorf("market %s selection %d lay: %w", book.MarketID, r.SelectionID, err)
		}
		ib.BestBack, ib.BestLay = back, lay
		books = append(books, ib)
	}

	return domain.NewMarketEvent(domain.MarketID(book.MarketID), seq, observedAt, books, open, inPlay, closed)
}

func statusSignals(status string) (open, closed domain.Signal) {
	switch status {
	case StatusOpen:
		return domain.SignalTrue, domain.SignalUnknown
	case StatusSuspended:
		return domain.SignalFalse, domain.SignalUnknown
	case StatusClosed:
		return domain.SignalFalse, domain.SignalTrue
	default:
		return domain.SignalUnknown, domain.SignalUnknown
	}
}

func bestLevel(ladder []PriceLevel) (*domain.PriceSize, error) {
	if len(ladder) == 0 {
		return nil, nil
	}
	ps, err := domain.NewPriceSize(ladder[0].Price, ladder[0].Size)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// ParseBooks decodes a listMarketBook response body.
func ParseBooks(body []byte) ([]MarketBook, error) {
	var books []MarketBook
	if err := json.Unmarshal(body, &books); err != nil {
		return nil, fmt.Errorf("decode market books: %w", err)
	}
	return books, nil
}
