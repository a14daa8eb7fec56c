package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dip-trader/pkg/setonce"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestRecordFillCreatesThenAccumulates(t *testing.T) {
	b := NewTracker(fixedClock()).SellLimits()

	r, err := b.RecordFill(1, d("10"), d("90"))
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyFilled, r.State)

	r, err = b.RecordFill(1, d("15"), d("75"))
	require.NoError(t, err)
	assert.True(t, r.Filled.Equal(d("25")))
	assert.True(t, r.Remaining.Equal(d("75")))

	r, err = b.RecordFill(1, d("75"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, r.IsFullyFilled())
	assert.Equal(t, StateFullyFilled, r.State)

	_, err = b.RecordFill(1, d("-1"), d("1"))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRedeliveredStatusKeepsRemaining(t *testing.T) {
	b := NewTracker(fixedClock()).Buys()
	require.NoError(t, b.AddLive(5, "B"))

	for i := 0; i < 3; i++ {
		r, err := b.ApplyStatus(5, StatusSubmitted, d("4"), d("19"))
		require.NoError(t, err)
		assert.True(t, r.Remaining.Equal(d("19")))
		assert.True(t, r.Filled.Equal(d("4")))
		assert.Equal(t, "B", r.Symbol)
	}
}

func TestFullFillLeavesLiveSet(t *testing.T) {
	b := NewTracker(fixedClock()).SellLimits()
	require.NoError(t, b.AddLive(7, "AAPL"))
	_, err := b.ApplyStatus(7, StatusFilled, d("100"), decimal.Zero)
	require.NoError(t, err)

	assert.False(t, b.IsLive(7))
	assert.NotContains(t, b.UnfilledOrderIDs(), int64(7))
	assert.ErrorIs(t, b.RemoveFromLiveSet(7), ErrOrderNotLive)
}

func TestUnfilledNeverHoldsZeroRemaining(t *testing.T) {
	b := NewTracker(fixedClock()).SellLimits()
	require.NoError(t, b.AddLive(1, "A"))
	require.NoError(t, b.AddLive(2, "B"))
	require.NoError(t, b.AddLive(3, "C"))

	_, err := b.ApplyStatus(1, StatusFilled, d("10"), decimal.Zero)
	require.NoError(t, err)
	_, err = b.ApplyStatus(2, StatusSubmitted, d("3"), d("7"))
	require.NoError(t, err)

	// 3 is live but has not reported yet
	assert.Equal(t, []int64{2, 3}, b.UnfilledOrderIDs())
	for _, id := range b.UnfilledOrderIDs() {
		r, ok := b.Get(id)
		if ok {
			assert.False(t, r.Remaining.IsZero())
		}
	}
}

func TestCancellationStatuses(t *testing.T) {
	tests := []struct {
		status   Status
		wantLive bool
		want     State
	}{
		{StatusPendingCancel, true, StatePartiallyFilled},
		{StatusCancelled, false, StateCancelled},
		{StatusApiCancelled, false, StateCancelled},
		{StatusInactive, false, StateCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			b := NewTracker(fixedClock()).SellLimits()
			require.NoError(t, b.AddLive(9, "X"))
			r, err := b.ApplyStatus(9, tt.status, d("2"), d("8"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.State)
			assert.Equal(t, tt.wantLive, b.IsLive(9))
		})
	}
}

func TestFullyFilledIsFinal(t *testing.T) {
	late := []struct {
		name      string
		status    Status
		filled    string
		remaining string
	}{
		{"stale submitted", StatusSubmitted, "40", "60"},
		{"cancel after fill", StatusCancelled, "40", "60"},
		{"redelivered filled", StatusFilled, "100", "0"},
	}
	for _, tt := range late {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTracker(fixedClock()).SellLimits()
			require.NoError(t, b.AddLive(7, "AAPL"))
			_, err := b.ApplyStatus(7, StatusSubmitted, d("40"), d("60"))
			require.NoError(t, err)
			_, err = b.ApplyStatus(7, StatusFilled, d("100"), decimal.Zero)
			require.NoError(t, err)

			r, err := b.ApplyStatus(7, tt.status, d(tt.filled), d(tt.remaining))
			require.NoError(t, err)
			assert.Equal(t, StateFullyFilled, r.State)
			assert.True(t, r.Remaining.IsZero())
			assert.True(t, r.Filled.Equal(d("100")))
			assert.False(t, b.IsLive(7))
			assert.Empty(t, b.UnfilledOrderIDs())
			assert.Empty(t, b.SymbolsAndRemainingQuantities())
		})
	}

	b := NewTracker(fixedClock()).Buys()
	_, err := b.RecordFill(3, d("10"), decimal.Zero)
	require.NoError(t, err)
	r, err := b.RecordFill(3, d("5"), d("5"))
	require.NoError(t, err)
	assert.Equal(t, StateFullyFilled, r.State)
	assert.True(t, r.Filled.Equal(d("10")))
	assert.True(t, r.Remaining.IsZero())
}

func TestSymbolsAndRemainingQuantities(t *testing.T) {
	b := NewTracker(fixedClock()).SellLimits()
	require.NoError(t, b.AddLive(1, "FULL"))
	require.NoError(t, b.AddLive(2, "PART"))
	require.NoError(t, b.AddLive(3, "GONE"))

	_, err := b.ApplyStatus(1, StatusFilled, d("50"), decimal.Zero)
	require.NoError(t, err)
	_, err = b.ApplyStatus(2, StatusSubmitted, d("30"), d("20"))
	require.NoError(t, err)
	_, err = b.ApplyStatus(3, StatusCancelled, decimal.Zero, d("40"))
	require.NoError(t, err)
	// no symbol known: skipped
	_, err = b.RecordFill(4, decimal.Zero, d("10"))
	require.NoError(t, err)

	got := b.SymbolsAndRemainingQuantities()
	require.Len(t, got, 2)
	assert.True(t, got["PART"].Equal(d("20")))
	assert.True(t, got["GONE"].Equal(d("40")))
}

func TestOpenOrderDirectory(t *testing.T) {
	tr := NewTracker(fixedClock())

	// symbol learned before the first status
	res, err := tr.NoteOpenOrder(11, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, setonce.Set, res)
	_, err = tr.SellLimits().RecordFill(11, decimal.Zero, d("5"))
	require.NoError(t, err)
	r, _ := tr.SellLimits().Get(11)
	assert.Equal(t, "MSFT", r.Symbol)

	// symbol learned after the first status
	_, err = tr.SellLimits().RecordFill(12, decimal.Zero, d("5"))
	require.NoError(t, err)
	res, err = tr.NoteOpenOrder(12, "IBM")
	require.NoError(t, err)
	assert.Equal(t, setonce.Set, res)
	r, _ = tr.SellLimits().Get(12)
	assert.Equal(t, "IBM", r.Symbol)

	res, err = tr.NoteOpenOrder(12, "IBM")
	require.NoError(t, err)
	assert.Equal(t, setonce.AlreadySet, res)
	_, err = tr.NoteOpenOrder(12, "OTHER")
	assert.ErrorIs(t, err, ErrSymbolMismatch)

	res, err = tr.SellLimits().AssignSymbol(12, "OTHER")
	require.NoError(t, err)
	assert.Equal(t, setonce.AlreadySet, res)

	_, err = tr.SellLimits().AssignSymbol(99, "X")
	assert.ErrorIs(t, err, ErrUnknownOrderID)
}

func TestRouteAndLiveSet(t *testing.T) {
	tr := NewTracker(nil)
	require.NoError(t, tr.Buys().AddLive(1, "A"))
	require.NoError(t, tr.SellLimits().AddLive(2, "B"))
	assert.ErrorIs(t, tr.Buys().AddLive(1, "A"), ErrDuplicateLiveID)

	b, err := tr.Route(1)
	require.NoError(t, err)
	assert.Equal(t, ClassBuy, b.Class())
	b, err = tr.Route(2)
	require.NoError(t, err)
	assert.Equal(t, ClassSellLimit, b.Class())
	_, err = tr.Route(3)
	assert.ErrorIs(t, err, ErrUnknownOrderID)

	require.NoError(t, tr.SellLimits().RemoveFromLiveSet(2))
	assert.ErrorIs(t, tr.SellLimits().RemoveFromLiveSet(2), ErrOrderNotLive)

	// still routable after leaving the live set, so the cancel confirmation lands
	b, err = tr.Route(2)
	require.NoError(t, err)
	r, err := b.ApplyStatus(2, StatusCancelled, decimal.Zero, d("3"))
	require.NoError(t, err)
	assert.Equal(t, "B", r.Symbol)
	assert.Equal(t, StateCancelled, r.State)
}

func TestSequence(t *testing.T) {
	var s Sequence
	_, err := s.Next()
	assert.ErrorIs(t, err, ErrSequenceNotSeeded)

	s.Seed(100)
	a, _ := s.Next()
	b, _ := s.Next()
	assert.Equal(t, int64(100), a)
	assert.Equal(t, int64(101), b)

	s.Seed(50) // stale seed does not rewind
	c, _ := s.Next()
	assert.Equal(t, int64(102), c)
}
