package watchlist

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dip-trader/internal/contract"
)

func newContracts(symbols ...string) []*contract.Contract {
	out := make([]*contract.Contract, len(symbols))
	for i, s := range symbols {
		out[i] = contract.New(s, decimal.NewFromInt(10))
	}
	return out
}

func TestRoundRobinRotation(t *testing.T) {
	set, err := NewBatchSet(2, 0)
	require.NoError(t, err)
	for _, c := range newContracts("A", "B", "C", "D") {
		_, err := set.AddContract(c)
		require.NoError(t, err)
	}

	batches := set.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"A", "B"}, batches[0].Symbols())
	assert.Equal(t, []string{"C", "D"}, batches[1].Symbols())

	var got []int
	for i := 0; i < 3; i++ {
		b, ok := set.NextBatch()
		require.True(t, ok)
		got = append(got, b.Index)
	}
	assert.Equal(t, []int{0, 1, 0}, got)
}

func TestNewBatchOnlyWhenTailFull(t *testing.T) {
	set, err := NewBatchSet(3, 0)
	require.NoError(t, err)
	cs := newContracts("A", "B", "C", "D")
	for i, c := range cs {
		idx, err := set.AddContract(c)
		require.NoError(t, err)
		assert.Equal(t, i/3, idx)
	}
	assert.Equal(t, 2, set.BatchCount())
	for _, b := range set.Batches() {
		assert.LessOrEqual(t, len(b.Contracts), 3)
	}
}

func TestCapacityExhausted(t *testing.T) {
	set, err := NewBatchSet(1, 2)
	require.NoError(t, err)
	cs := newContracts("A", "B", "C")
	_, err = set.AddContract(cs[0])
	require.NoError(t, err)
	_, err = set.AddContract(cs[1])
	require.NoError(t, err)
	_, err = set.AddContract(cs[2])
	assert.ErrorIs(t, err, ErrCapacityExhausted)
	assert.False(t, set.ContainsContract(cs[2]))
}

func TestDuplicateAndRemove(t *testing.T) {
	set, err := NewBatchSet(2, 0)
	require.NoError(t, err)
	cs := newContracts("A", "B", "C")
	for _, c := range cs {
		_, err := set.AddContract(c)
		require.NoError(t, err)
	}

	_, err = set.AddContract(contract.New("a", decimal.Zero))
	assert.ErrorIs(t, err, ErrAlreadyListed)

	assert.True(t, set.RemoveContract(cs[0]))
	assert.False(t, set.RemoveContract(cs[0]))
	assert.False(t, set.ContainsContract(cs[0]))
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"B"}, set.Batches()[0].Symbols())

	// new admissions go to the tail, not into the hole
	idx, err := set.AddContract(contract.New("D", decimal.Zero))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestRotationSkipsEmptiedBatches(t *testing.T) {
	set, err := NewBatchSet(2, 0)
	require.NoError(t, err)
	cs := newContracts("A", "B", "C", "D", "E")
	for _, c := range cs {
		_, err := set.AddContract(c)
		require.NoError(t, err)
	}
	require.Equal(t, 3, set.BatchCount())

	// empty the middle batch
	require.True(t, set.RemoveContract(cs[2]))
	require.True(t, set.RemoveContract(cs[3]))

	var got []int
	for i := 0; i < 4; i++ {
		b, ok := set.NextBatch()
		require.True(t, ok)
		assert.NotEmpty(t, b.Contracts)
		got = append(got, b.Index)
	}
	assert.Equal(t, []int{0, 2, 0, 2}, got)
	assert.Equal(t, 0, set.CursorIndex())

	for _, c := range []*contract.Contract{cs[0], cs[1], cs[4]} {
		require.True(t, set.RemoveContract(c))
	}
	_, ok := set.NextBatch()
	assert.False(t, ok)
	assert.Equal(t, 3, set.BatchCount())
	assert.Equal(t, 2, set.Capacity())
}

func TestEmptySet(t *testing.T) {
	set, err := NewBatchSet(5, 0)
	require.NoError(t, err)
	_, ok := set.NextBatch()
	assert.False(t, ok)

	_, err = NewBatchSet(0, 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}
