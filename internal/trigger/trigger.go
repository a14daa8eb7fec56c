// Package trigger decides when a watched symbol has dropped far enough to buy,
// and prices the resulting orders.
package trigger

import (
	"errors"

	"github.com/shopspring/decimal"

	"dip-trader/internal/contract"
)

var (
	ErrNonPositivePrice = errors.New("price must be positive")
	ErrNoOpeningPrice   = errors.New("opening price not set")
)

var hundred = decimal.NewFromInt(100)

// DecreasePercent returns how far current sits below opening, in percent.
func DecreasePercent(opening, current decimal.Decimal) decimal.Decimal {
	return opening.Sub(current).Div(opening).Mul(hundred)
}

// HasFallenBelowPercentage reports whether currentPrice is more than the contract's
// threshold below its opening price. A drop exactly equal to the threshold does not
// qualify. On a drop the price is recorded as the contract's latest observation.
func HasFallenBelowPercentage(currentPrice decimal.Decimal, c *contract.Contract) (bool, error) {
	if !currentPrice.IsPositive() {
		return false, ErrNonPositivePrice
	}
	opening, ok := c.OpeningPrice()
	if !ok {
		return false, ErrNoOpeningPrice
	}
	if currentPrice.GreaterThanOrEqual(opening) {
		return false, nil
	}
	c.ObservePrice(currentPrice)
	return DecreasePercent(opening, currentPrice).GreaterThan(c.Threshold()), nil
}
