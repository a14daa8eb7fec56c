// Package gatewaytest provides a Gateway that records every request for assertions.
package gatewaytest

import (
	"sync"

	"dip-trader/internal/contract"
	"dip-trader/internal/gateway"
)

type Subscription struct {
	RequestID int
	Spec      contract.Spec
}

type PlacedOrder struct {
	OrderID int64
	Spec    contract.Spec
	Order   gateway.OrderSpec
}

// Recorder is a gateway.Gateway that never calls back. Tests drive the
// Handler side directly.
type Recorder struct {
	mu             sync.Mutex
	subscribes     []Subscription
	unsubscribes   []int
	orders         []PlacedOrder
	cancels        []int64
	portfolioCalls []bool

	// Err, when set, is returned from every request.
	Err error
}

var _ gateway.Gateway = (*Recorder)(nil)

func New() *Recorder { return &Recorder{} }

func (r *Recorder) SubscribeMarketData(reqID int, spec contract.Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribes = append(r.subscribes, Subscription{RequestID: reqID, Spec: spec})
	return r.Err
}

func (r *Recorder) UnsubscribeMarketData(reqID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribes = append(r.unsubscribes, reqID)
	return r.Err
}

func (r *Recorder) PlaceOrder(orderID int64, spec contract.Spec, o gateway.OrderSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, PlacedOrder{OrderID: orderID, Spec: spec, Order: o})
	return r.Err
}

func (r *Recorder) CancelOrder(orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, orderID)
	return r.Err
}

func (r *Recorder) RequestPortfolioUpdates(enable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portfolioCalls = append(r.portfolioCalls, enable)
	return r.Err
}

func (r *Recorder) Subscribes() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Subscription(nil), r.subscribes...)
}

func (r *Recorder) Unsubscribes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.unsubscribes...)
}

func (r *Recorder) Orders() []PlacedOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PlacedOrder(nil), r.orders...)
}

// OrdersOfType filters placed orders by venue order type.
func (r *Recorder) OrdersOfType(orderType string) []PlacedOrder {
	var out []PlacedOrder
	for _, o := range r.Orders() {
		if o.Order.OrderType == orderType {
			out = append(out, o)
		}
	}
	return out
}

func (r *Recorder) Cancels() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.cancels...)
}

func (r *Recorder) PortfolioCalls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.portfolioCalls...)
}

// SubscribedSymbols lists symbols with a subscribe not yet followed by an unsubscribe.
func (r *Recorder) SubscribedSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	gone := make(map[int]bool, len(r.unsubscribes))
	for _, id := range r.unsubscribes {
		gone[id] = true
	}
	var out []string
	for _, s := range r.subscribes {
		if !gone[s.RequestID] {
			out = append(out, s.Spec.Symbol)
		}
	}
	return out
}
