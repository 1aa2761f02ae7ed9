package betfair

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/infra"
)

// Poller drives a set of markets from listMarketBook on a fixed interval.
// Markets are dropped from the poll set once they are reported CLOSED.
type Poller struct {
	client       *Client
	sink         Sink
	seq          *SeqCounter
	metrics      *infra.Metrics
	logger       *slog.Logger
	pollInterval time.Duration
	retryBase    time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	markets   []string
	connected bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller for marketIDs.
func NewPoller(client *Client, marketIDs []string, pollInterval time.Duration, sink Sink, metrics *infra.Metrics, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Poller{
		client:       client,
		sink:         sink,
		seq:          NewSeqCounter(),
		metrics:      metrics,
		logger:       logger.With("module", "betfair_poller"),
		pollInterval: pollInterval,
		retryBase:    time.Second,
		now:          domain.Now,
		markets:      append([]string(nil), marketIDs...),
	}
}

// Connect starts polling. The first poll happens immediately.
func (p *Poller) Connect(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	if err := p.poll(ctx); err != nil {
		p.logger.Warn("Initial market book poll failed", slog.Any("error", err))
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Market book polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Market book polling stopped")
				return
			case <-ticker.C:
				if err := p.poll(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn("Market book poll failed", slog.Any("error", err))
				}
			}
		}
	}()

	return nil
}

// Disconnect stops polling and waits for the loop to exit.
func (p *Poller) Disconnect() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
	p.setConnected(false)
}

// IsConnected reports whether the last poll succeeded.
func (p *Poller) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Markets returns the ids still being polled.
func (p *Poller) Markets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.markets...)
}

// poll fetches every active market once and forwards the events.
func (p *Poller) poll(ctx context.Context) error {
	markets := p.Markets()
	for start := 0; start < len(markets); start += maxMarketsPerRequest {
		end := min(start+maxMarketsPerRequest, len(markets))

		books, err := p.fetchBooks(ctx, markets[start:end])
		if err != nil {
			p.setConnected(false)
			return err
		}
		p.setConnected(true)

		if err := p.forward(ctx, books); err != nil {
			return err
		}
	}
	return nil
}

// fetchBooks calls listMarketBook with retry: 3 attempts, exponential backoff.
func (p *Poller) fetchBooks(ctx context.Context, ids []string) ([]MarketBook, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			delay := p.retryBase * time.Duration(1<<uint(i-1))
			p.logger.Info("Retrying market book fetch", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		books, err := p.client.ListMarketBook(ctx, ids)
		if err == nil {
			return books, nil
		}
		lastErr = err
		p.metrics.RecordFeedError("network")
		p.logger.Warn("Market book fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
		if !domain.IsRetriable(err) {
			break
		}
	}
	return nil, lastErr
}

func (p *Poller) forward(ctx context.Context, books []MarketBook) error {
	observed := p.now()
	for _, b := range books {
		id := domain.MarketID(b.MarketID)
		ev, err := EventFromBook(b, p.seq.Next(id), observed)
		if err != nil {
			p.metrics.RecordFeedError("decode")
			p.logger.Warn("Dropped malformed market book", slog.String("market", b.MarketID), slog.Any("error", err))
			continue
		}
		if err := p.sink(ctx, ev); err != nil {
			return err
		}
		if b.Status == StatusClosed {
			p.retire(b.MarketID)
			p.seq.Forget(id)
		}
	}
	return nil
}

func (p *Poller) retire(marketID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, id := range p.markets {
		if id == marketID {
			p.markets = append(p.markets[:i], p.markets[i+1:]...)
			break
		}
	}
	p.logger.Info("Market closed, no longer polled",
		slog.String("market", marketID),
		slog.Int("remaining", len(p.markets)),
	)
}

func (p *Poller) setConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = v
}
