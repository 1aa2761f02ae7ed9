package engine

import (
	"testing"
	"time"

	"repricer_go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func mkEvent(t testing.TB, id domain.MarketID, seq int64, open, inPlay, closed domain.Signal, sel domain.SelectionID) domain.MarketEvent {
	t.Helper()
	back := domain.MustPriceSize(2.0, 10)
	books := []domain.InstrumentBook{{SelectionID: sel, BestBack: &back}}
	ev, err := domain.NewMarketEvent(id, seq, t0.Add(time.Duration(seq)*time.Second), books, open, inPlay, closed)
	require.NoError(t, err)
	return ev
}

func TestOrchestrator_LazyCreate(t *testing.T) {
	o := NewOrchestrator(0)
	_, ok := o.Get("1.1")
	assert.False(t, ok)

	out, err := o.Apply(mkEvent(t, "1.1", 1, domain.SignalTrue, domain.SignalUnknown, domain.SignalUnknown, 7))
	require.NoError(t, err)
	assert.False(t, out.Evicted)
	assert.Equal(t, domain.RegimeOpen, out.Snapshot.Regime)

	st, ok := o.Get("1.1")
	require.True(t, ok)
	assert.Equal(t, domain.MarketID("1.1"), st.MarketID())
}

func TestOrchestrator_EvictsClosed(t *testing.T) {
	o := NewOrchestrator(0)
	_, err := o.Apply(mkEvent(t, "1.1", 1, domain.SignalTrue, domain.SignalUnknown, domain.SignalUnknown, 7))
	require.NoError(t, err)

	out, err := o.Apply(mkEvent(t, "1.1", 2, domain.SignalFalse, domain.SignalUnknown, domain.SignalTrue, 7))
	require.NoError(t, err)
	require.True(t, out.Evicted)
	assert.Equal(t, domain.RegimeClosed, out.Snapshot.Regime)
	assert.Equal(t, int64(2), out.Snapshot.LastSeq)
	assert.Equal(t, 0, o.Len())

	// A late event creates a fresh instance with no residual books.
	out, err = o.Apply(mkEvent(t, "1.1", 1, domain.SignalUnknown, domain.SignalUnknown, domain.SignalUnknown, 8))
	require.NoError(t, err)
	assert.False(t, out.Evicted)
	assert.Equal(t, domain.RegimeUnknown, out.Snapshot.Regime)
	assert.Equal(t, int64(1), out.Snapshot.LastSeq)
	assert.NotContains(t, out.Snapshot.Books, domain.SelectionID(7))
	assert.Contains(t, out.Snapshot.Books, domain.SelectionID(8))
}

func TestOrchestrator_OrderingViolationPropagates(t *testing.T) {
	o := NewOrchestrator(0)
	_, err := o.Apply(mkEvent(t, "1.1", 3, domain.SignalTrue, domain.SignalUnknown, domain.SignalUnknown, 7))
	require.NoError(t, err)

	_, err = o.Apply(mkEvent(t, "1.1", 2, domain.SignalFalse, domain.SignalUnknown, domain.SignalUnknown, 7))
	assert.ErrorIs(t, err, domain.ErrOrderingViolation)

	st, _ := o.Get("1.1")
	assert.Equal(t, domain.RegimeOpen, st.Regime())
}

func TestOrchestrator_ActiveMarketIDs(t *testing.T) {
	o := NewOrchestrator(0)
	for _, id := range []domain.MarketID{"1.3", "1.1", "1.2"} {
		_, err := o.Apply(mkEvent(t, id, 1, domain.SignalTrue, domain.SignalUnknown, domain.SignalUnknown, 1))
		require.NoError(t, err)
	}
	assert.Equal(t, []domain.MarketID{"1.1", "1.2", "1.3"}, o.ActiveMarketIDs())
	assert.Len(t, o.Snapshots(), 3)
}
