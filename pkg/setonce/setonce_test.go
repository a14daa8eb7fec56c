package setonce

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSetOnce(t *testing.T) {
	var v Value[int]
	_, ok := v.Get()
	require.False(t, ok)

	require.Equal(t, Set, v.Set(7))
	require.Equal(t, AlreadySet, v.Set(9))

	got, ok := v.Get()
	require.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Set.Err())
	assert.True(t, errors.Is(AlreadySet.Err(), ErrAlreadySet))
	assert.True(t, Set.OK())
	assert.False(t, AlreadySet.OK())
}

func TestResetStartsNewLifetime(t *testing.T) {
	var v Value[string]
	v.Set("a")
	v.Reset()
	assert.False(t, v.IsSet())
	assert.Equal(t, Set, v.Set("b"))
	got, _ := v.Get()
	assert.Equal(t, "b", got)
}
