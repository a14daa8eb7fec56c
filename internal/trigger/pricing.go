package trigger

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// RoundPrice applies venue tick rules: sub-dollar prices keep 4 places, others 2.
func RoundPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThanOrEqual(one) {
		return p.Round(4)
	}
	return p.Round(2)
}

// LimitBuyPrice discounts the qualifying price by discountPct percent and rounds it.
func LimitBuyPrice(price, discountPct decimal.Decimal) decimal.Decimal {
	return RoundPrice(price.Mul(hundred.Sub(discountPct)).Div(hundred))
}

// SellLimitPrice marks the average cost up by markupPct percent and rounds it.
func SellLimitPrice(averageCost, markupPct decimal.Decimal) decimal.Decimal {
	return RoundPrice(averageCost.Mul(hundred.Add(markupPct)).Div(hundred))
}

// ShareQuantity is the whole number of shares capital buys at limitPrice.
func ShareQuantity(capital, limitPrice decimal.Decimal) int64 {
	if !limitPrice.IsPositive() || !capital.IsPositive() {
		return 0
	}
	return capital.Div(limitPrice).Floor().IntPart()
}
