package contract

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"dip-trader/pkg/setonce"
)

// Routing constants for every stock contract this system trades.
const (
	SecTypeStock    = "STK"
	CurrencyUSD     = "USD"
	ExchangeSmart   = "SMART"
	PrimaryExchange = "ISLAND"
)

// NoSubscription is reported when a contract has no live market-data request.
const NoSubscription = -1

// Spec identifies an instrument at the venue.
type Spec struct {
	Symbol          string `json:"symbol"`
	SecType         string `json:"sec_type"`
	Currency        string `json:"currency"`
	Exchange        string `json:"exchange"`
	PrimaryExchange string `json:"primary_exchange"`
}

// StockSpec builds the routing spec for a US stock.
func StockSpec(symbol string) Spec {
	return Spec{
		Symbol:          NormalizeSymbol(symbol),
		SecType:         SecTypeStock,
		Currency:        CurrencyUSD,
		Exchange:        ExchangeSmart,
		PrimaryExchange: PrimaryExchange,
	}
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Contract is a symbol under consideration together with its trigger and position state.
type Contract struct {
	spec Spec

	mu             sync.Mutex
	openingPrice   setonce.Value[decimal.Decimal]
	currentPrice   decimal.Decimal
	threshold      decimal.Decimal
	subscriptionID setonce.Value[int]
	position       setonce.Value[decimal.Decimal]
	averageCost    setonce.Value[decimal.Decimal]
	pendingOrderID setonce.Value[int64]
}

// New creates a contract for symbol with the given default threshold (percent).
func New(symbol string, thresholdPercent decimal.Decimal) *Contract {
	return &Contract{
		spec:      StockSpec(symbol),
		threshold: thresholdPercent,
	}
}

// Symbol returns the contract's ticker.
func (c *Contract) Symbol() string { return c.spec.Symbol }

// Spec returns the venue routing spec.
func (c *Contract) Spec() Spec { return c.spec }

// SetOpeningPrice records the day's opening price. Only the first call takes effect.
func (c *Contract) SetOpeningPrice(p decimal.Decimal) (setonce.Result, error) {
	if !p.IsPositive() {
		return setonce.AlreadySet, ErrInvalidOpeningPrice
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openingPrice.Set(p), nil
}

// OpeningPrice returns the opening price and whether it has been set.
func (c *Contract) OpeningPrice() (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openingPrice.Get()
}

// ObservePrice stores the latest observed price.
func (c *Contract) ObservePrice(p decimal.Decimal) {
	c.mu.Lock()
	c.currentPrice = p
	c.mu.Unlock()
}

// CurrentPrice returns the latest observed price, or zero when none was recorded.
func (c *Contract) CurrentPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPrice
}

// Threshold returns the drop percentage that triggers a buy.
func (c *Contract) Threshold() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// SubscriptionID returns the live market-data request id or NoSubscription.
func (c *Contract) SubscriptionID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.subscriptionID.Get(); ok {
		return id
	}
	return NoSubscription
}

func (c *Contract) bindSubscription(reqID int) setonce.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptionID.Set(reqID)
}

func (c *Contract) releaseSubscription() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.subscriptionID.Get()
	c.subscriptionID.Reset()
	return id, ok
}

// SetPosition records shares held from a portfolio snapshot.
func (c *Contract) SetPosition(qty decimal.Decimal) setonce.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position.Set(qty)
}

// Position returns the shares held and whether the position is known.
func (c *Contract) Position() (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position.Get()
}

// SetAverageCost records the position's average cost.
func (c *Contract) SetAverageCost(cost decimal.Decimal) setonce.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.averageCost.Set(cost)
}

// AverageCost returns the average cost and whether it is known.
func (c *Contract) AverageCost() (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.averageCost.Get()
}

// MarkOrderPending claims the contract for a buy order. A second claim is refused,
// which keeps a repeated qualifying tick from submitting another order.
func (c *Contract) MarkOrderPending(orderID int64) setonce.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingOrderID.Set(orderID)
}

// PendingOrderID returns the buy order placed for this contract, if any.
func (c *Contract) PendingOrderID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingOrderID.Get()
}

// HasPendingOrder reports whether a buy order was already submitted.
func (c *Contract) HasPendingOrder() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingOrderID.IsSet()
}

// View is a read-only copy of a contract's state.
type View struct {
	Symbol         string          `json:"symbol"`
	OpeningPrice   decimal.Decimal `json:"opening_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	Threshold      decimal.Decimal `json:"threshold_percent"`
	SubscriptionID int             `json:"subscription_id"`
	Position       decimal.Decimal `json:"position"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	PendingOrderID int64           `json:"pending_order_id,omitempty"`
}

// View snapshots the contract.
func (c *Contract) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Symbol:         c.spec.Symbol,
		CurrentPrice:   c.currentPrice,
		Threshold:      c.threshold,
		SubscriptionID: NoSubscription,
	}
	v.OpeningPrice, _ = c.openingPrice.Get()
	if id, ok := c.subscriptionID.Get(); ok {
		v.SubscriptionID = id
	}
	v.Position, _ = c.position.Get()
	v.AverageCost, _ = c.averageCost.Get()
	v.PendingOrderID, _ = c.pendingOrderID.Get()
	return v
}
