// Package watchlist partitions admitted contracts into subscription-sized batches
// and hands them out round-robin.
package watchlist

import (
	"errors"
	"fmt"
	"sync"

	"dip-trader/internal/contract"
)

var (
	ErrCapacityExhausted = errors.New("watchlist batch limit reached")
	ErrAlreadyListed     = errors.New("contract already in watchlist")
	ErrInvalidCapacity   = errors.New("batch capacity must be positive")
)

// Batch is a snapshot of one capacity-bounded group of contracts.
type Batch struct {
	Index     int
	Contracts []*contract.Contract
}

// Symbols lists the batch's tickers in insertion order.
func (b Batch) Symbols() []string {
	out := make([]string, len(b.Contracts))
	for i, c := range b.Contracts {
		out[i] = c.Symbol()
	}
	return out
}

type batch struct {
	items []*contract.Contract
}

// BatchSet is an ordered sequence of batches plus a rotation cursor.
type BatchSet struct {
	mu         sync.Mutex
	capacity   int
	maxBatches int // 0 means unbounded
	batches    []*batch
	cursor     int
	where      map[string]int
}

// NewBatchSet creates an empty set. maxBatches of zero disables the batch cap.
func NewBatchSet(capacity, maxBatches int) (*BatchSet, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if maxBatches < 0 {
		maxBatches = 0
	}
	return &BatchSet{
		capacity:   capacity,
		maxBatches: maxBatches,
		where:      make(map[string]int),
	}, nil
}

// Capacity returns the per-batch ceiling.
func (s *BatchSet) Capacity() int { return s.capacity }

// AddContract appends c to the tail batch, opening a new batch when the tail is full.
// It returns the index of the batch that received c.
func (s *BatchSet) AddContract(c *contract.Contract) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.where[c.Symbol()]; ok {
		return 0, fmt.Errorf("%s: %w", c.Symbol(), ErrAlreadyListed)
	}
	if len(s.batches) == 0 || len(s.batches[len(s.batches)-1].items) >= s.capacity {
		if s.maxBatches > 0 && len(s.batches) >= s.maxBatches {
			return 0, fmt.Errorf("%s: %w (%d batches of %d)", c.Symbol(), ErrCapacityExhausted, s.maxBatches, s.capacity)
		}
		s.batches = append(s.batches, &batch{items: make([]*contract.Contract, 0, s.capacity)})
	}
	idx := len(s.batches) - 1
	tail := s.batches[idx]
	tail.items = append(tail.items, c)
	s.where[c.Symbol()] = idx
	return idx, nil
}

// NextBatch returns the first non-empty batch at or after the cursor and moves
// the cursor past it, wrapping at the end. Batches emptied by RemoveContract are
// skipped; ok is false when every batch is empty.
func (s *BatchSet) NextBatch() (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.batches)
	if n == 0 {
		return Batch{}, false
	}
	if s.cursor >= n {
		s.cursor = 0
	}
	for step := 0; step < n; step++ {
		i := (s.cursor + step) % n
		if len(s.batches[i].items) == 0 {
			continue
		}
		s.cursor = (i + 1) % n
		return s.snapshot(i), true
	}
	return Batch{}, false
}

// RemoveContract drops c from whichever batch holds it. Missing contracts are ignored.
func (s *BatchSet) RemoveContract(c *contract.Contract) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.where[c.Symbol()]
	if !ok {
		return false
	}
	b := s.batches[idx]
	for i, item := range b.items {
		if item.Symbol() == c.Symbol() {
			b.items = append(b.items[:i], b.items[i+1:]...)
			break
		}
	}
	delete(s.where, c.Symbol())
	return true
}

// ContainsContract reports whether a contract with c's symbol is listed.
func (s *BatchSet) ContainsContract(c *contract.Contract) bool {
	return s.ContainsSymbol(c.Symbol())
}

// ContainsSymbol reports whether symbol is listed.
func (s *BatchSet) ContainsSymbol(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.where[contract.NormalizeSymbol(symbol)]
	return ok
}

// Len returns the number of listed contracts.
func (s *BatchSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.where)
}

// BatchCount returns how many batches have been allocated.
func (s *BatchSet) BatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// CursorIndex returns the index NextBatch will hand out next.
func (s *BatchSet) CursorIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return 0
	}
	return s.cursor % len(s.batches)
}

// Batches snapshots every batch in creation order.
func (s *BatchSet) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Batch, len(s.batches))
	for i := range s.batches {
		out[i] = s.snapshot(i)
	}
	return out
}

func (s *BatchSet) snapshot(i int) Batch {
	items := s.batches[i].items
	cp := make([]*contract.Contract, len(items))
	copy(cp, items)
	return Batch{Index: i, Contracts: cp}
}
