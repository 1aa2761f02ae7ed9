package betfair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"repricer_go/internal/domain"
	"repricer_go/internal/infra"

	"github.com/gorilla/websocket"
)

// StreamWorker subscribes to a websocket relay that publishes "mcm" frames
// carrying full MarketBook images (the listMarketBook JSON shape), and
// reconnects with backoff until Disconnect.
//
// It does not speak the native Betfair Exchange Stream API, which is a TLS
// socket of CRLF-delimited JSON with delta-encoded market changes. Run a relay
// in front of it that materializes those deltas into MarketBook images.
type StreamWorker struct {
	url       string
	appKey    string
	session   string
	marketIDs []string
	sink      Sink
	seq       *SeqCounter
	metrics   *infra.Metrics
	logger    *slog.Logger
	backoff   func(attempt int) time.Duration

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	requestID atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStreamWorker creates a worker for the relay at url (ws:// or wss://).
func NewStreamWorker(url, appKey, session string, marketIDs []string, sink Sink, metrics *infra.Metrics, logger *slog.Logger) *StreamWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamWorker{
		url:       url,
		appKey:    appKey,
		session:   session,
		marketIDs: append([]string(nil), marketIDs...),
		sink:      sink,
		seq:       NewSeqCounter(),
		metrics:   metrics,
		logger:    logger.With("module", "betfair_stream"),
		backoff:   infra.CalculateBackoff,
	}
}

// Connect starts the connection loop with automatic reconnection.
func (w *StreamWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

// connectionLoop handles connection and reconnection with exponential backoff.
func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Stream panic recovered", slog.Any("panic", r))
		}
	}()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stream connection loop stopped")
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.metrics.RecordFeedError("network")
			delay := w.backoff(attempt)
			w.logger.Warn("Stream connection failed",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			attempt++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		attempt = 0
		w.readLoop(ctx)
	}
}

// connect dials, authenticates when credentials are set, and subscribes.
func (w *StreamWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	w.metrics.IncrementConnections()

	if w.appKey != "" {
		auth := authenticationRequest{Op: "authentication", ID: w.requestID.Add(1), AppKey: w.appKey, Session: w.session}
		if err := w.writeJSON(auth); err != nil {
			w.closeConnection()
			return fmt.Errorf("authenticate failed: %w", err)
		}
	}

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	w.logger.Info("Stream connected", slog.Int("markets", len(w.marketIDs)))
	return nil
}

func (w *StreamWorker) subscribe() error {
	return w.writeJSON(subscriptionRequest{
		Op:           "marketSubscription",
		ID:           w.requestID.Add(1),
		MarketFilter: marketFilter{MarketIDs: w.marketIDs},
		HeartbeatMs:  heartbeatMs,
	})
}

func (w *StreamWorker) writeJSON(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, msg)
}

// threadSafeWrite serializes writers on the connection.
func (w *StreamWorker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return errors.New("connection is nil")
	}

	return conn.WriteMessage(messageType, data)
}

// readLoop reads frames until the connection fails or ctx is done.
func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.metrics.RecordFeedError("network")
				w.logger.Warn("Stream read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		if err := w.handleMessage(ctx, message); err != nil {
			// Only a canceled sink ends up here.
			w.closeConnection()
			return
		}
	}
}

// handleMessage decodes one frame and forwards market images in order.
// Submission blocks, so a slow sequencer applies backpressure to the socket.
func (w *StreamWorker) handleMessage(ctx context.Context, message []byte) error {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		w.metrics.RecordFeedError("decode")
		w.logger.Debug("Stream message parse error", slog.Any("error", err))
		return nil
	}

	switch msg.Op {
	case "mcm":
	case "status":
		if msg.StatusCode == "FAILURE" {
			w.metrics.RecordFeedError("status")
			w.logger.Error("Stream status failure",
				slog.String("error_code", msg.ErrorCode),
				slog.String("message", msg.ErrorMessage),
			)
		}
		return nil
	default:
		return nil
	}

	observed := domain.Now()
	if msg.PublishTime > 0 {
		observed = time.UnixMilli(msg.PublishTime).UTC()
	}

	for _, b := range msg.MC {
		id := domain.MarketID(b.MarketID)
		ev, err := EventFromBook(b, w.seq.Next(id), observed)
		if err != nil {
			w.metrics.RecordFeedError("decode")
			w.logger.Warn("Dropped malformed market image", slog.String("market", b.MarketID), slog.Any("error", err))
			continue
		}
		if err := w.sink(ctx, ev); err != nil {
			return err
		}
		if b.Status == StatusClosed {
			w.seq.Forget(id)
		}
	}
	return nil
}

// closeConnection safely closes the websocket connection.
func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		w.metrics.DecrementConnections()
	}
	w.connected = false
}

// Disconnect stops the worker and waits for it to exit.
func (w *StreamWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	w.logger.Info("Stream disconnected")
}

// IsConnected returns connection status.
func (w *StreamWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

var (
	_ domain.FeedWorker = (*StreamWorker)(nil)
	_ domain.FeedWorker = (*Poller)(nil)
)
