package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"repricer_go/internal/domain"
)

type recordingHandler struct {
	seen chan domain.MarketEvent
}

func (h *recordingHandler) Handle(_ context.Context, ev domain.MarketEvent) {
	h.seen <- ev
}

type panickingHandler struct{}

func (panickingHandler) Handle(context.Context, domain.MarketEvent) { panic("boom") }

func (panickingHandler) DumpState() any { return map[string]int{"markets": 2} }

func TestSequencer_DispatchesInOrder(t *testing.T) {
	h := &recordingHandler{seen: make(chan domain.MarketEvent, 10)}
	seq := NewSequencer(10, h, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go seq.Run(ctx)

	for i := int64(1); i <= 3; i++ {
		if err := seq.Submit(ctx, mkEvent(t, "1.1", i, domain.SignalTrue, domain.SignalUnknown, domain.SignalUnknown, 7)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		select {
		case ev := <-h.seen:
			if ev.Seq != want {
				t.Errorf("Expected seq %d, got %d", want, ev.Seq)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSequencer_SubmitRespectsContext(t *testing.T) {
	seq := NewSequencer(0, &recordingHandler{}, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := seq.Submit(ctx, mkEvent(t, "1.1", 1, domain.SignalTrue, domain.SignalUnknown, domain.SignalUnknown, 7))
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSequencer_PanicDumpsState(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "dump.json")
	seq := NewSequencer(1, panickingHandler{}, dump, nil)
	seq.Inbox() <- mkEvent(t, "1.1", 1, domain.SignalTrue, domain.SignalUnknown, domain.SignalUnknown, 7)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Sequencer should have re-panicked after dumping state")
			}
		}()
		seq.Run(context.Background())
	}()

	b, err := os.ReadFile(dump)
	if err != nil {
		t.Fatalf("dump not written: %v", err)
	}
	var got struct {
		Processed uint64         `json:"processed"`
		State     map[string]int `json:"state"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid dump: %v", err)
	}
	if got.State["markets"] != 2 {
		t.Errorf("Expected dumped handler state, got %s", b)
	}
}
