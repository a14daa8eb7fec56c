package trigger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dip-trader/internal/contract"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func opened(t *testing.T, opening, threshold string) *contract.Contract {
	t.Helper()
	c := contract.New("TEST", d(threshold))
	_, err := c.SetOpeningPrice(d(opening))
	require.NoError(t, err)
	return c
}

func TestThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    bool
	}{
		{"exactly at threshold", "90", false},
		{"just past threshold", "89.99", true},
		{"small dip", "95", false},
		{"unchanged", "100", false},
		{"above open", "120", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := opened(t, "100", "10")
			got, err := HasFallenBelowPercentage(d(tt.current), c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNeverTriggersAtOrAboveOpen(t *testing.T) {
	for _, open := range []string{"0.5", "1", "12.34", "250"} {
		c := opened(t, open, "0")
		for _, bump := range []string{"0", "0.0001", "1", "1000"} {
			got, err := HasFallenBelowPercentage(d(open).Add(d(bump)), c)
			require.NoError(t, err)
			assert.False(t, got, "open=%s bump=%s", open, bump)
		}
	}
}

func TestObservesPriceOnDrop(t *testing.T) {
	c := opened(t, "50", "10")
	ok, err := HasFallenBelowPercentage(d("42.5"), c)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c.CurrentPrice().Equal(d("42.5")))
}

func TestRejectsBadInput(t *testing.T) {
	c := opened(t, "50", "10")
	_, err := HasFallenBelowPercentage(decimal.Zero, c)
	assert.ErrorIs(t, err, ErrNonPositivePrice)
	_, err = HasFallenBelowPercentage(d("-1"), c)
	assert.ErrorIs(t, err, ErrNonPositivePrice)

	_, err = HasFallenBelowPercentage(d("1"), contract.New("NOOPEN", d("10")))
	assert.ErrorIs(t, err, ErrNoOpeningPrice)
}

func TestRoundPrice(t *testing.T) {
	assert.Equal(t, "0.1235", RoundPrice(d("0.123456")).String())
	assert.Equal(t, "1", RoundPrice(d("1.00")).String())
	assert.Equal(t, "1.24", RoundPrice(d("1.2351")).String())
	assert.Equal(t, "42.5", RoundPrice(d("42.5")).String())
}

func TestOrderSizing(t *testing.T) {
	assert.Equal(t, "42.5", LimitBuyPrice(d("42.5"), decimal.Zero).String())
	assert.Equal(t, "40.38", LimitBuyPrice(d("42.5"), d("5")).String())
	assert.Equal(t, "10.3", SellLimitPrice(d("10"), d("3")).String())

	assert.Equal(t, int64(23), ShareQuantity(d("1000"), d("42.5")))
	assert.Equal(t, int64(0), ShareQuantity(d("10"), d("42.5")))
	assert.Equal(t, int64(0), ShareQuantity(d("1000"), decimal.Zero))
}
