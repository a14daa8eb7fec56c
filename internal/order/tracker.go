// Package order tracks submitted orders from placement through fill or cancel.
package order

import (
	"fmt"
	"sync"
	"time"

	"dip-trader/pkg/setonce"
)

// directory maps order ids to symbols learned from open-order callbacks,
// which may arrive before or after the first status for the same id.
type directory struct {
	mu      sync.Mutex
	symbols map[int64]string
}

func (d *directory) lookup(id int64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.symbols[id]
	return s, ok
}

func (d *directory) note(id int64, symbol string) (setonce.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.symbols[id]; ok {
		if prev != symbol {
			return setonce.AlreadySet, fmt.Errorf("order %d is %s, not %s: %w", id, prev, symbol, ErrSymbolMismatch)
		}
		return setonce.AlreadySet, nil
	}
	d.symbols[id] = symbol
	return setonce.Set, nil
}

// Tracker keeps separate books for buys, sell limits and closing market orders.
type Tracker struct {
	dir   *directory
	books map[Class]*Book
}

// NewTracker creates an empty tracker. A nil clock uses time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	dir := &directory{symbols: make(map[int64]string)}
	t := &Tracker{dir: dir, books: make(map[Class]*Book, 3)}
	for _, c := range []Class{ClassBuy, ClassSellLimit, ClassMarketOnClose} {
		t.books[c] = newBook(c, dir, now)
	}
	return t
}

// Buys holds limit buys placed on a trigger.
func (t *Tracker) Buys() *Book { return t.books[ClassBuy] }

// SellLimits holds the liquidation sell limits for carried positions.
func (t *Tracker) SellLimits() *Book { return t.books[ClassSellLimit] }

// MarketOnClose holds the closing orders placed at the close deadline.
func (t *Tracker) MarketOnClose() *Book { return t.books[ClassMarketOnClose] }

// Route finds the book that owns id.
func (t *Tracker) Route(id int64) (*Book, error) {
	for _, c := range []Class{ClassBuy, ClassSellLimit, ClassMarketOnClose} {
		if b := t.books[c]; b.Owns(id) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("order %d: %w", id, ErrUnknownOrderID)
}

// NoteOpenOrder records the symbol the venue reports for id and binds it to an
// existing record that has none yet. Redelivery of the same symbol is AlreadySet;
// a different symbol for a known id is ErrSymbolMismatch.
func (t *Tracker) NoteOpenOrder(id int64, symbol string) (setonce.Result, error) {
	res, err := t.dir.note(id, symbol)
	if err != nil {
		return res, err
	}
	if b, rerr := t.Route(id); rerr == nil {
		if bound, aerr := b.AssignSymbol(id, symbol); aerr == nil && bound.OK() {
			return setonce.Set, nil
		}
	}
	return res, nil
}

// Snapshot returns the records of every book.
func (t *Tracker) Snapshot() []Record {
	var out []Record
	for _, c := range []Class{ClassBuy, ClassSellLimit, ClassMarketOnClose} {
		out = append(out, t.books[c].Records()...)
	}
	return out
}
