package market

import (
	"testing"
	"time"

	"repricer_go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mid = domain.MarketID("1.234")

var t0 = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

type tick struct {
	seq    int64
	at     time.Time
	open   domain.Signal
	inPlay domain.Signal
	closed domain.Signal
	sel    domain.SelectionID
	back   *domain.PriceSize
	lay    *domain.PriceSize
}

func (tk tick) event(t *testing.T) domain.MarketEvent {
	t.Helper()
	at := tk.at
	if at.IsZero() {
		at = t0.Add(time.Duration(tk.seq) * time.Second)
	}
	sel := tk.sel
	if sel == 0 {
		sel = 11
	}
	books := []domain.InstrumentBook{{SelectionID: sel, BestBack: tk.back, BestLay: tk.lay}}
	ev, err := domain.NewMarketEvent(mid, tk.seq, at, books, tk.open, tk.inPlay, tk.closed)
	require.NoError(t, err)
	return ev
}

func level(p, s float64) *domain.PriceSize {
	ps := domain.MustPriceSize(p, s)
	return &ps
}

func TestState_Idempotence(t *testing.T) {
	s := NewState(mid, 0)
	ev := tick{seq: 1, open: domain.SignalTrue, back: level(2.0, 10), lay: level(2.02, 12)}.event(t)

	require.NoError(t, s.Apply(ev))
	first := s.Snapshot()
	require.NoError(t, s.Apply(ev))
	second := s.Snapshot()

	assert.Equal(t, first, second)
}

func TestState_Ordering(t *testing.T) {
	s := NewState(mid, 0)
	require.NoError(t, s.Apply(tick{seq: 5, open: domain.SignalTrue}.event(t)))
	before := s.Snapshot()

	err := s.Apply(tick{seq: 4, open: domain.SignalFalse, sel: 22}.event(t))

	assert.ErrorIs(t, err, domain.ErrOrderingViolation)
	var oe *domain.OrderingError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, int64(5), oe.LastSeq)
	assert.Equal(t, before, s.Snapshot(), "rejected event must not mutate state")
}

func TestState_MarketMismatch(t *testing.T) {
	s := NewState("9.9", 0)
	err := s.Apply(tick{seq: 1, open: domain.SignalTrue}.event(t))
	assert.ErrorIs(t, err, domain.ErrMarketMismatch)
	assert.Equal(t, NoSequence, s.Snapshot().LastSeq)
}

func TestState_Regimes(t *testing.T) {
	t.Run("unknown blocks execution", func(t *testing.T) {
		s := NewState(mid, 0)
		assert.False(t, s.CanExecute(t0))
		assert.ErrorIs(t, s.AssertSafeToExecute(t0), domain.ErrUnsafeRegime)
	})

	t.Run("open allows execution", func(t *testing.T) {
		s := NewState(mid, 0)
		require.NoError(t, s.Apply(tick{seq: 1, open: domain.SignalTrue}.event(t)))
		assert.Equal(t, domain.RegimeOpen, s.Regime())
		assert.True(t, s.CanExecute(t0.Add(time.Second)))
		assert.NoError(t, s.AssertSafeToExecute(t0.Add(time.Second)))
	})

	t.Run("suspended blocks execution", func(t *testing.T) {
		s := NewState(mid, 0)
		require.NoError(t, s.Apply(tick{seq: 1, open: domain.SignalTrue}.event(t)))
		require.NoError(t, s.Apply(tick{seq: 2, open: domain.SignalFalse}.event(t)))
		assert.Equal(t, domain.RegimeSuspended, s.Regime())
		assert.False(t, s.CanExecute(t0.Add(time.Hour)))

		var ue *domain.UnsafeRegimeError
		require.ErrorAs(t, s.AssertSafeToExecute(t0.Add(time.Hour)), &ue)
		assert.Equal(t, domain.RegimeSuspended, ue.Regime)
	})

	t.Run("unknown signals leave regime alone", func(t *testing.T) {
		s := NewState(mid, 0)
		require.NoError(t, s.Apply(tick{seq: 1, open: domain.SignalTrue}.event(t)))
		require.NoError(t, s.Apply(tick{seq: 2}.event(t)))
		assert.Equal(t, domain.RegimeOpen, s.Regime())
	})
}

func TestState_InPlayIsIrreversible(t *testing.T) {
	s := NewState(mid, 0)
	require.NoError(t, s.Apply(tick{seq: 1, open: domain.SignalTrue}.event(t)))
	require.True(t, s.CanExecute(t0.Add(time.Second)))

	require.NoError(t, s.Apply(tick{seq: 2, inPlay: domain.SignalTrue}.event(t)))
	assert.Equal(t, domain.RegimeInPlay, s.Regime())

	require.NoError(t, s.Apply(tick{seq: 3, open: domain.SignalTrue}.event(t)))
	require.NoError(t, s.Apply(tick{seq: 4, open: domain.SignalFalse}.event(t)))
	assert.Equal(t, domain.RegimeInPlay, s.Regime())
	assert.False(t, s.CanExecute(t0.Add(24*time.Hour)))
}

func TestState_ClosedIsTerminal(t *testing.T) {
	s := NewState(mid, 0)
	require.NoError(t, s.Apply(tick{seq: 1, open: domain.SignalTrue, sel: 1}.event(t)))

	require.NoError(t, s.Apply(tick{seq: 2, closed: domain.SignalTrue, sel: 2}.event(t)))
	assert.Equal(t, domain.RegimeClosed, s.Regime())
	assert.False(t, s.CanExecute(t0.Add(time.Hour)))

	require.NoError(t, s.Apply(tick{seq: 3, open: domain.SignalTrue, sel: 999}.event(t)))
	snap := s.Snapshot()
	assert.Equal(t, domain.RegimeClosed, snap.Regime)
	assert.Equal(t, int64(2), snap.LastSeq)
	assert.NotContains(t, snap.Books, domain.SelectionID(999))
	assert.Contains(t, snap.Books, domain.SelectionID(1))
}

func TestState_ClosedOverridesInPlay(t *testing.T) {
	s := NewState(mid, 0)
	require.NoError(t, s.Apply(tick{seq: 1, inPlay: domain.SignalTrue}.event(t)))
	require.NoError(t, s.Apply(tick{seq: 2, inPlay: domain.SignalTrue, closed: domain.SignalTrue}.event(t)))
	assert.Equal(t, domain.RegimeClosed, s.Regime())
}

func TestState_Cooldown(t *testing.T) {
	const cooldown = 5 * time.Second

	t.Run("reopen from suspended arms cooldown", func(t *testing.T) {
		s := NewState(mid, cooldown)
		require.NoError(t, s.Apply(tick{seq: 1, at: t0, open: domain.SignalFalse}.event(t)))

		t1 := t0.Add(time.Second)
		require.NoError(t, s.Apply(tick{seq: 2, at: t1, open: domain.SignalTrue}.event(t)))

		assert.False(t, s.CanExecute(t1))
		var ue *domain.UnsafeRegimeError
		require.ErrorAs(t, s.AssertSafeToExecute(t1), &ue)
		assert.True(t, ue.Cooldown)

		assert.False(t, s.CanExecute(t1.Add(cooldown-time.Nanosecond)))
		assert.True(t, s.CanExecute(t1.Add(cooldown)))
	})

	t.Run("open from unknown is fail closed until cooldown", func(t *testing.T) {
		s := NewState(mid, cooldown)
		require.NoError(t, s.Apply(tick{seq: 1, at: t0, open: domain.SignalTrue}.event(t)))
		assert.False(t, s.CanExecute(t0))
		assert.True(t, s.CanExecute(t0.Add(cooldown)))
		assert.Equal(t, t0.Add(cooldown), s.Snapshot().CooldownUntil)
	})

	t.Run("open to open does not re-arm", func(t *testing.T) {
		s := NewState(mid, cooldown)
		require.NoError(t, s.Apply(tick{seq: 1, at: t0, open: domain.SignalTrue}.event(t)))
		require.NoError(t, s.Apply(tick{seq: 2, at: t0.Add(4 * time.Second), open: domain.SignalTrue}.event(t)))
		assert.Equal(t, t0.Add(cooldown), s.Snapshot().CooldownUntil)
		assert.True(t, s.CanExecute(t0.Add(cooldown)))
	})
}

func TestState_AssertFresh(t *testing.T) {
	s := NewState(mid, 0)

	var se *domain.StaleDataError
	require.ErrorAs(t, s.AssertFresh(2*time.Second, t0), &se)
	assert.True(t, se.NoData)

	at := t0.Add(10 * time.Second)
	require.NoError(t, s.Apply(tick{seq: 1, at: at, open: domain.SignalTrue}.event(t)))
	assert.NoError(t, s.AssertFresh(2*time.Second, at.Add(2*time.Second)))
	assert.ErrorIs(t, s.AssertFresh(2*time.Second, at.Add(3*time.Second)), domain.ErrStaleData)
}

func TestState_BookMerge(t *testing.T) {
	s := NewState(mid, 0)
	require.NoError(t, s.Apply(tick{seq: 1, open: domain.SignalTrue, sel: 11, back: level(2.0, 10)}.event(t)))
	require.NoError(t, s.Apply(tick{seq: 2, sel: 22, lay: level(3.1, 4)}.event(t)))
	require.NoError(t, s.Apply(tick{seq: 3, sel: 11, back: level(2.1, 5)}.event(t)))

	snap := s.Snapshot()
	require.Len(t, snap.Books, 2)
	b11, _ := snap.Book(11)
	assert.True(t, b11.BestBack.Price.Equal(level(2.1, 5).Price))
	_, ok := snap.Book(22)
	assert.True(t, ok)
}

func TestSnapshot_IsDetached(t *testing.T) {
	s := NewState(mid, 0)
	require.NoError(t, s.Apply(tick{seq: 1, open: domain.SignalTrue, back: level(2.0, 10)}.event(t)))

	snap := s.Snapshot()
	delete(snap.Books, 11)
	again := s.Snapshot()
	require.Contains(t, again.Books, domain.SelectionID(11))

	again.Books[11].BestBack.Size = level(2.0, 1).Size
	assert.True(t, s.Snapshot().Books[11].BestBack.Size.Equal(level(2.0, 10).Size))
}
