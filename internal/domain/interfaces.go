package domain

import (
	"context"
)

// FeedWorker defines the interface for venue market-data connectors
type FeedWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// Journal receives settlement records. Writes must not block the hotpath for long.
type Journal interface {
	SaveFill(ctx context.Context, rec *FillRecord) error
	SaveClosedMarket(ctx context.Context, rec *ClosedMarketRecord) error
}
