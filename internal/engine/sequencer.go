package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"repricer_go/internal/domain"
)

// Handler processes one market event. It is only ever called from the
// sequencer goroutine, so implementations need no locking of their own state.
type Handler interface {
	Handle(ctx context.Context, ev domain.MarketEvent)
}

// StateDumper exposes internal state for post-mortem dumps.
type StateDumper interface {
	DumpState() any
}

// Sequencer serializes every market event through one goroutine.
// Feed workers may run concurrently; they only ever write to the inbox.
type Sequencer struct {
	inbox    chan domain.MarketEvent
	handler  Handler
	dumpFile string
	logger   *slog.Logger

	processed uint64
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, handler Handler, dumpFile string, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	if dumpFile == "" {
		dumpFile = "panic_dump.json"
	}
	return &Sequencer{
		inbox:    make(chan domain.MarketEvent, inboxSize),
		handler:  handler,
		dumpFile: dumpFile,
		logger:   logger,
	}
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- domain.MarketEvent {
	return s.inbox
}

// Submit blocks until ev is queued or ctx is done.
func (s *Sequencer) Submit(ctx context.Context, ev domain.MarketEvent) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("Sequencer started")

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED",
				slog.Any("panic", r),
				slog.Uint64("processed", s.processed),
			)
			s.DumpState(s.dumpFile)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...", slog.Uint64("processed", s.processed))
			return
		case ev := <-s.inbox:
			s.handler.Handle(ctx, ev)
			s.processed++
		}
	}
}

// DumpState writes the handler's state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Processed uint64 `json:"processed"`
		State     any    `json:"state,omitempty"`
	}{
		Processed: s.processed,
	}
	if d, ok := s.handler.(StateDumper); ok {
		data.State = d.DumpState()
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
