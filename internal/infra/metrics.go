package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the repricer.
// Each instance owns its registry. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	EventsApplied   prometheus.Counter
	EventsRejected  *prometheus.CounterVec
	Evictions       prometheus.Counter
	GuardBlocks     *prometheus.CounterVec
	IntentsAccepted *prometheus.CounterVec
	IntentsRejected *prometheus.CounterVec
	Fills           prometheus.Counter
	StepDuration    prometheus.Histogram
	ActiveMarkets   prometheus.Gauge
	FeedConnections prometheus.Gauge
	FeedErrors      *prometheus.CounterVec
	JournalErrors   prometheus.Counter
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "repricer_events_applied_total",
			Help: "Market events applied to a state machine",
		}),
		EventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repricer_events_rejected_total",
			Help: "Market events rejected before reaching state",
		}, []string{"reason"}),
		Evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "repricer_market_evictions_total",
			Help: "Markets evicted after reaching Closed",
		}),
		GuardBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repricer_guard_blocks_total",
			Help: "Steps where trading was blocked by a guard",
		}, []string{"guard"}),
		IntentsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repricer_intents_accepted_total",
			Help: "Intents accepted by the risk gate",
		}, []string{"source"}),
		IntentsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repricer_intents_rejected_total",
			Help: "Intents rejected by the risk gate",
		}, []string{"reason"}),
		Fills: f.NewCounter(prometheus.CounterOpts{
			Name: "repricer_fills_total",
			Help: "Paper fills applied to the ledger",
		}),
		StepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "repricer_step_duration_seconds",
			Help:    "Time to process one market event end to end",
			Buckets: []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01},
		}),
		ActiveMarkets: f.NewGauge(prometheus.GaugeOpts{
			Name: "repricer_active_markets",
			Help: "Markets with a live state machine",
		}),
		FeedConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "repricer_feed_connections",
			Help: "Open feed connections",
		}),
		FeedErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repricer_feed_errors_total",
			Help: "Feed transport and decode errors",
		}, []string{"kind"}),
		JournalErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "repricer_journal_errors_total",
			Help: "Failed writes to the settlement journal",
		}),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStep records one processed event with its latency.
func (m *Metrics) RecordStep(d time.Duration) {
	if m == nil {
		return
	}
	m.EventsApplied.Inc()
	m.StepDuration.Observe(d.Seconds())
}

// RecordRejectedEvent records an event dropped before it touched state.
func (m *Metrics) RecordRejectedEvent(reason string) {
	if m == nil {
		return
	}
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordEviction records a market reaching Closed.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}

// RecordGuardBlock records a step blocked by the named guard (stale, regime).
func (m *Metrics) RecordGuardBlock(guard string) {
	if m == nil {
		return
	}
	m.GuardBlocks.WithLabelValues(guard).Inc()
}

// RecordIntents records n accepted intents from source (exit, entry).
func (m *Metrics) RecordIntents(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.IntentsAccepted.WithLabelValues(source).Add(float64(n))
}

// RecordRejection records one intent rejected by the risk gate.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.IntentsRejected.WithLabelValues(reason).Inc()
}

// RecordFills records n paper fills.
func (m *Metrics) RecordFills(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Fills.Add(float64(n))
}

// SetActiveMarkets sets the live market gauge.
func (m *Metrics) SetActiveMarkets(n int) {
	if m == nil {
		return
	}
	m.ActiveMarkets.Set(float64(n))
}

// IncrementConnections increments active feed connections by 1.
func (m *Metrics) IncrementConnections() {
	if m == nil {
		return
	}
	m.FeedConnections.Inc()
}

// DecrementConnections decrements active feed connections by 1.
func (m *Metrics) DecrementConnections() {
	if m == nil {
		return
	}
	m.FeedConnections.Dec()
}

// RecordFeedError records a feed error of the given kind (network, decode, status).
func (m *Metrics) RecordFeedError(kind string) {
	if m == nil {
		return
	}
	m.FeedErrors.WithLabelValues(kind).Inc()
}

// RecordJournalError records a failed journal write.
func (m *Metrics) RecordJournalError() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}
