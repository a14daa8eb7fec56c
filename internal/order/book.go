package order

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dip-trader/pkg/setonce"
)

var (
	ErrUnknownOrderID    = errors.New("order id not tracked")
	ErrOrderNotLive      = errors.New("order id not in live set")
	ErrDuplicateLiveID   = errors.New("order id already live")
	ErrInvalidQuantity   = errors.New("quantity must not be negative")
	ErrSymbolMismatch    = errors.New("order already bound to a different symbol")
	ErrSequenceNotSeeded = errors.New("order id sequence not seeded")
)

type record struct {
	id        int64
	symbol    setonce.Value[string]
	filled    decimal.Decimal
	reported  decimal.Decimal
	remaining decimal.Decimal
	state     State
	updatedAt time.Time
}

// Book tracks one class of orders: its live ids and their fill records.
type Book struct {
	class Class
	dir   *directory
	now   func() time.Time

	mu      sync.Mutex
	records map[int64]*record
	live    map[int64]string
	placed  map[int64]string
}

func newBook(class Class, dir *directory, now func() time.Time) *Book {
	return &Book{
		class:   class,
		dir:     dir,
		now:     now,
		records: make(map[int64]*record),
		live:    make(map[int64]string),
		placed:  make(map[int64]string),
	}
}

// Class returns which orders this book holds.
func (b *Book) Class() Class { return b.class }

// AddLive marks id as an open order for symbol. Called right after placement.
func (b *Book) AddLive(id int64, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[id]; ok {
		return fmt.Errorf("order %d: %w", id, ErrDuplicateLiveID)
	}
	b.live[id] = symbol
	b.placed[id] = symbol
	return nil
}

// RemoveFromLiveSet drops id from the live set. Ids that are not live are an error.
func (b *Book) RemoveFromLiveSet(id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.live[id]; !ok {
		return fmt.Errorf("order %d: %w", id, ErrOrderNotLive)
	}
	delete(b.live, id)
	return nil
}

// IsLive reports whether id is in the live set.
func (b *Book) IsLive(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.live[id]
	return ok
}

// Owns reports whether id was placed through this book or has a record here.
func (b *Book) Owns(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.placed[id]; ok {
		return true
	}
	_, ok := b.records[id]
	return ok
}

// LiveCount returns the number of live ids.
func (b *Book) LiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// RecordFill creates the record for id on first sight, otherwise adds filledDelta to
// the running fill total and replaces remaining with the venue's figure.
// A zero remaining completes the order and takes it out of the live set; later
// fills for a completed order are ignored.
func (b *Book) RecordFill(id int64, filledDelta, remaining decimal.Decimal) (Record, error) {
	if filledDelta.IsNegative() || remaining.IsNegative() {
		return Record{}, ErrInvalidQuantity
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.ensure(id)
	if r.state == StateFullyFilled {
		return b.snapshot(r), nil
	}
	r.filled = r.filled.Add(filledDelta)
	b.applyRemaining(r, remaining)
	return b.snapshot(r), nil
}

// ApplyStatus folds a venue status callback into the book. filled is the venue's
// cumulative figure; only the increase since the last report is accumulated, so a
// redelivered callback leaves the record unchanged. PendingCancel is treated as an
// ordinary update: the order stays live until the venue confirms the cancel.
// A fully filled order is final; reports arriving after it are ignored.
func (b *Book) ApplyStatus(id int64, status Status, filled, remaining decimal.Decimal) (Record, error) {
	if filled.IsNegative() || remaining.IsNegative() {
		return Record{}, ErrInvalidQuantity
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.ensure(id)
	if r.state == StateFullyFilled {
		return b.snapshot(r), nil
	}
	if filled.GreaterThan(r.reported) {
		r.filled = r.filled.Add(filled.Sub(r.reported))
		r.reported = filled
	}
	if status.IsCancellation() && remaining.IsPositive() {
		r.remaining = remaining
		r.state = StateCancelled
		r.updatedAt = b.now()
		delete(b.live, id)
		return b.snapshot(r), nil
	}
	b.applyRemaining(r, remaining)
	return b.snapshot(r), nil
}

// AssignSymbol binds symbol to id's record. A second binding is refused.
func (b *Book) AssignSymbol(id int64, symbol string) (setonce.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[id]
	if !ok {
		return setonce.AlreadySet, fmt.Errorf("order %d: %w", id, ErrUnknownOrderID)
	}
	return r.symbol.Set(symbol), nil
}

// Get returns the record for id.
func (b *Book) Get(id int64) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[id]
	if !ok {
		return Record{}, false
	}
	return b.snapshot(r), true
}

// UnfilledOrderIDs lists live ids and every recorded order still open, ascending.
// Orders whose last report had nothing remaining are never included.
func (b *Book) UnfilledOrderIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[int64]struct{}, len(b.live)+len(b.records))
	for id := range b.live {
		if r, ok := b.records[id]; ok && r.state.Terminal() {
			continue
		}
		seen[id] = struct{}{}
	}
	for id, r := range b.records {
		if !r.state.Terminal() {
			seen[id] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SymbolsAndRemainingQuantities sums the remaining quantity per symbol over orders
// that still need closing out: a known symbol, something left, not fully filled.
func (b *Book) SymbolsAndRemainingQuantities() map[string]decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]decimal.Decimal)
	for _, r := range b.records {
		sym, ok := r.symbol.Get()
		if !ok || r.state == StateFullyFilled || !r.remaining.IsPositive() {
			continue
		}
		out[sym] = out[sym].Add(r.remaining)
	}
	return out
}

// Records snapshots every record ordered by id.
func (b *Book) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, b.snapshot(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Book) ensure(id int64) *record {
	if r, ok := b.records[id]; ok {
		return r
	}
	r := &record{id: id, state: StateCreated, updatedAt: b.now()}
	if sym, ok := b.placed[id]; ok && sym != "" {
		r.symbol.Set(sym)
	} else if sym, ok := b.dir.lookup(id); ok {
		r.symbol.Set(sym)
	}
	b.records[id] = r
	return r
}

func (b *Book) applyRemaining(r *record, remaining decimal.Decimal) {
	r.remaining = remaining
	r.updatedAt = b.now()
	if r.state == StateCancelled {
		return
	}
	switch {
	case remaining.IsZero():
		r.state = StateFullyFilled
		delete(b.live, r.id)
	case r.filled.IsPositive():
		r.state = StatePartiallyFilled
	}
}

func (b *Book) snapshot(r *record) Record {
	sym, _ := r.symbol.Get()
	_, live := b.live[r.id]
	return Record{
		ID:        r.id,
		Class:     b.class,
		Symbol:    sym,
		Filled:    r.filled,
		Remaining: r.remaining,
		State:     r.state,
		StateName: r.state.String(),
		Live:      live,
		UpdatedAt: r.updatedAt,
	}
}
