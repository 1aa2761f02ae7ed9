package infra

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordStep(t *testing.T) {
	m := NewMetrics()

	m.RecordStep(10 * time.Microsecond)
	m.RecordStep(20 * time.Microsecond)
	m.RecordStep(30 * time.Microsecond)

	if got := testutil.ToFloat64(m.EventsApplied); got != 3 {
		t.Errorf("Expected 3 events, got %v", got)
	}
	if got := testutil.CollectAndCount(m.StepDuration); got != 1 {
		t.Errorf("Expected 1 histogram series, got %d", got)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := NewMetrics()

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()
	if got := testutil.ToFloat64(m.FeedConnections); got != 3 {
		t.Errorf("Expected 3 connections, got %v", got)
	}

	m.DecrementConnections()
	if got := testutil.ToFloat64(m.FeedConnections); got != 2 {
		t.Errorf("Expected 2 connections, got %v", got)
	}
}

func TestMetrics_Labels(t *testing.T) {
	m := NewMetrics()

	m.RecordGuardBlock("stale")
	m.RecordGuardBlock("regime")
	m.RecordGuardBlock("regime")
	m.RecordRejection("selection_cap")
	m.RecordIntents("exit", 2)
	m.RecordIntents("entry", 0)
	m.RecordFills(2)
	m.RecordRejectedEvent("ordering")
	m.RecordFeedError("decode")

	if got := testutil.ToFloat64(m.GuardBlocks.WithLabelValues("regime")); got != 2 {
		t.Errorf("Expected 2 regime blocks, got %v", got)
	}
	if got := testutil.ToFloat64(m.IntentsAccepted.WithLabelValues("exit")); got != 2 {
		t.Errorf("Expected 2 exit intents, got %v", got)
	}
	if got := testutil.CollectAndCount(m.IntentsAccepted); got != 1 {
		t.Errorf("Zero-count source must not create a series, got %d series", got)
	}
	if got := testutil.ToFloat64(m.Fills); got != 2 {
		t.Errorf("Expected 2 fills, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.RecordStep(time.Millisecond)
	m.RecordRejectedEvent("ordering")
	m.RecordEviction()
	m.RecordGuardBlock("stale")
	m.RecordIntents("entry", 1)
	m.RecordRejection("market_cap")
	m.RecordFills(1)
	m.SetActiveMarkets(3)
	m.IncrementConnections()
	m.DecrementConnections()
	m.RecordFeedError("network")
	m.RecordJournalError()
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SetActiveMarkets(4)
	m.RecordEviction()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, "repricer_active_markets 4") {
		t.Errorf("Expected active markets gauge in output:\n%s", text)
	}
	if !strings.Contains(text, "repricer_market_evictions_total 1") {
		t.Errorf("Expected eviction counter in output:\n%s", text)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordEviction()
	if got := testutil.ToFloat64(b.Evictions); got != 0 {
		t.Errorf("Registries must not share collectors, got %v", got)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{-1, 500 * time.Millisecond, 600 * time.Millisecond},
		{0, 500 * time.Millisecond, 600 * time.Millisecond},
		{1, time.Second, 1200 * time.Millisecond},
		{3, 4 * time.Second, 4800 * time.Millisecond},
		{10, 30 * time.Second, 36 * time.Second},
		{100, 30 * time.Second, 36 * time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := CalculateBackoff(tt.attempt)
			if got < tt.min || got >= tt.max {
				t.Fatalf("CalculateBackoff(%d) = %s, want [%s, %s)", tt.attempt, got, tt.min, tt.max)
			}
		}
	}
}
