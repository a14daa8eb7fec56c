// Package gateway defines the boundary to the brokerage: outbound requests are
// fire-and-forget and every result comes back later through a Handler callback.
package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dip-trader/internal/contract"
)

var (
	ErrNotStarted     = errors.New("gateway not started")
	ErrUnknownRequest = errors.New("unknown market data request")
	ErrUnknownOrder   = errors.New("unknown order")
)

// Gateway is the outbound half of the venue connection. Implementations must
// not block on network I/O and must never invoke Handler methods synchronously
// from inside these calls.
type Gateway interface {
	SubscribeMarketData(reqID int, spec contract.Spec) error
	UnsubscribeMarketData(reqID int) error
	PlaceOrder(orderID int64, spec contract.Spec, o OrderSpec) error
	CancelOrder(orderID int64) error
	RequestPortfolioUpdates(enable bool) error
}

// Handler receives venue callbacks. Calls arrive one at a time from a single
// dispatch goroutine.
type Handler interface {
	OnPriceTick(reqID int, field TickField, price decimal.Decimal)
	OnOrderStatus(orderID int64, status string, filled, remaining decimal.Decimal)
	OnOpenOrder(orderID int64, spec contract.Spec)
	OnPortfolioPosition(spec contract.Spec, position, marketPrice, averageCost decimal.Decimal)
	OnNextValidOrderID(id int64)
	OnAccountDownloadEnd(account string)
}

// TickField identifies which price a tick carries. Values follow the venue's numbering.
type TickField int

const (
	TickBid   TickField = 1
	TickAsk   TickField = 2
	TickLast  TickField = 4
	TickHigh  TickField = 6
	TickLow   TickField = 7
	TickClose TickField = 9
	TickOpen  TickField = 14
)

var tickNames = map[TickField]string{
	TickBid:   "bid",
	TickAsk:   "ask",
	TickLast:  "last",
	TickHigh:  "high",
	TickLow:   "low",
	TickClose: "close",
	TickOpen:  "open",
}

func (f TickField) String() string {
	if n, ok := tickNames[f]; ok {
		return n
	}
	return fmt.Sprintf("tick(%d)", int(f))
}

// ParseTickField accepts a field name such as "low".
func ParseTickField(s string) (TickField, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, n := range tickNames {
		if n == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown tick field %q", s)
}

// ParseTickFields parses a list of names, e.g. from configuration.
func ParseTickFields(names []string) ([]TickField, error) {
	out := make([]TickField, 0, len(names))
	for _, n := range names {
		f, err := ParseTickField(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Order actions and types understood by the venue.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	TypeLimit         = "LMT"
	TypeMarketOnClose = "MOC"

	TimeInForceDay = "DAY"
)

// OrderSpec describes what to trade.
type OrderSpec struct {
	Action      string          `json:"action"`
	OrderType   string          `json:"order_type"`
	Quantity    decimal.Decimal `json:"quantity"`
	LimitPrice  decimal.Decimal `json:"limit_price"`
	TimeInForce string          `json:"tif"`
}

// LimitBuy builds a day limit buy.
func LimitBuy(qty int64, price decimal.Decimal) OrderSpec {
	return OrderSpec{Action: ActionBuy, OrderType: TypeLimit, Quantity: decimal.NewFromInt(qty), LimitPrice: price, TimeInForce: TimeInForceDay}
}

// LimitSell builds a day limit sell.
func LimitSell(qty int64, price decimal.Decimal) OrderSpec {
	return OrderSpec{Action: ActionSell, OrderType: TypeLimit, Quantity: decimal.NewFromInt(qty), LimitPrice: price, TimeInForce: TimeInForceDay}
}

// MarketOnCloseSell builds a sell that executes in the closing auction.
func MarketOnCloseSell(qty int64) OrderSpec {
	return OrderSpec{Action: ActionSell, OrderType: TypeMarketOnClose, Quantity: decimal.NewFromInt(qty), TimeInForce: TimeInForceDay}
}
