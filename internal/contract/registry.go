// Package contract holds the canonical record of every symbol the session trades.
package contract

import (
	"errors"
	"fmt"
	"sync"

	"dip-trader/pkg/setonce"
)

var (
	ErrDuplicateSymbol     = errors.New("symbol already registered")
	ErrUnknownSymbol       = errors.New("symbol not registered")
	ErrInvalidOpeningPrice = errors.New("opening price must be positive")
	ErrSubscriptionInUse   = errors.New("request id bound to another symbol")
)

// Registry indexes contracts by symbol and by live market-data request id.
type Registry struct {
	mu       sync.RWMutex
	bySymbol map[string]*Contract
	bySubID  map[int]*Contract
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[string]*Contract),
		bySubID:  make(map[int]*Contract),
	}
}

// Add registers c. A symbol can be registered once.
func (r *Registry) Add(c *Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySymbol[c.Symbol()]; ok {
		return fmt.Errorf("%s: %w", c.Symbol(), ErrDuplicateSymbol)
	}
	r.bySymbol[c.Symbol()] = c
	r.order = append(r.order, c.Symbol())
	return nil
}

// Get looks up a contract by symbol.
func (r *Registry) Get(symbol string) (*Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySymbol[NormalizeSymbol(symbol)]
	return c, ok
}

// Contains reports whether symbol is registered.
func (r *Registry) Contains(symbol string) bool {
	_, ok := r.Get(symbol)
	return ok
}

// Len returns the number of registered contracts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// BindSubscription assigns reqID to the symbol's current subscription lifetime.
func (r *Registry) BindSubscription(symbol string, reqID int) (setonce.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.bySymbol[NormalizeSymbol(symbol)]
	if !ok {
		return setonce.AlreadySet, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}
	if other, taken := r.bySubID[reqID]; taken && other != c {
		return setonce.AlreadySet, fmt.Errorf("request %d: %w", reqID, ErrSubscriptionInUse)
	}
	res := c.bindSubscription(reqID)
	if res.OK() {
		r.bySubID[reqID] = c
	}
	return res, nil
}

// ReleaseSubscription ends the symbol's subscription lifetime and returns the freed request id.
func (r *Registry) ReleaseSubscription(symbol string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.bySymbol[NormalizeSymbol(symbol)]
	if !ok {
		return NoSubscription, false
	}
	id, had := c.releaseSubscription()
	if had {
		delete(r.bySubID, id)
	}
	return id, had
}

// BySubscription resolves a market-data request id to its contract.
func (r *Registry) BySubscription(reqID int) (*Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySubID[reqID]
	return c, ok
}

// ActiveSubscriptions counts contracts with a live request id.
func (r *Registry) ActiveSubscriptions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySubID)
}

// All returns contracts in registration order.
func (r *Registry) All() []*Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Contract, 0, len(r.order))
	for _, sym := range r.order {
		out = append(out, r.bySymbol[sym])
	}
	return out
}

// Snapshot returns views of every contract in registration order.
func (r *Registry) Snapshot() []View {
	all := r.All()
	out := make([]View, 0, len(all))
	for _, c := range all {
		out = append(out, c.View())
	}
	return out
}
