package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dip-trader/internal/contract"
)

// Holding is a position the paper account starts the day with.
type Holding struct {
	Symbol      string
	Position    decimal.Decimal
	AverageCost decimal.Decimal
}

// PaperConfig tunes the simulated venue.
type PaperConfig struct {
	Account      string
	NextValidID  int64
	TickInterval time.Duration
	StepPercent  float64 // max random move per tick
	DriftPercent float64 // deterministic move per tick, negative for a falling market
	FillLot      int64   // shares filled per tick, 0 fills the whole order at once
	Seed         int64
	Holdings     []Holding
}

type paperOrder struct {
	id        int64
	spec      contract.Spec
	order     OrderSpec
	filled    decimal.Decimal
	cancelled bool
}

func (o *paperOrder) remaining() decimal.Decimal { return o.order.Quantity.Sub(o.filled) }

func (o *paperOrder) open() bool { return !o.cancelled && o.remaining().IsPositive() }

// Paper is an in-process venue that random-walks prices for subscribed symbols
// and fills orders against them. Callbacks are delivered only from Run.
type Paper struct {
	cfg PaperConfig
	log zerolog.Logger
	box *mailbox[func(Handler)]

	mu     sync.Mutex
	rng    *rand.Rand
	subs   map[int]string
	prices map[string]decimal.Decimal
	lows   map[string]decimal.Decimal
	orders map[int64]*paperOrder
}

func NewPaper(cfg PaperConfig, log zerolog.Logger) *Paper {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.NextValidID <= 0 {
		cfg.NextValidID = 1
	}
	if cfg.Account == "" {
		cfg.Account = "PAPER"
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Paper{
		cfg:    cfg,
		log:    log,
		box:    newMailbox[func(Handler)](),
		rng:    rand.New(rand.NewSource(seed)),
		subs:   make(map[int]string),
		prices: make(map[string]decimal.Decimal),
		lows:   make(map[string]decimal.Decimal),
		orders: make(map[int64]*paperOrder),
	}
	for _, h := range cfg.Holdings {
		p.prices[contract.NormalizeSymbol(h.Symbol)] = h.AverageCost
	}
	return p
}

// SeedPrice sets the simulated price of symbol, typically to its opening price.
func (p *Paper) SeedPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := contract.NormalizeSymbol(symbol)
	p.prices[sym] = price
	p.lows[sym] = price
}

// Run announces the first valid order id and then delivers callbacks to h,
// stepping prices every tick interval, until ctx is canceled.
func (p *Paper) Run(ctx context.Context, h Handler) {
	next := p.cfg.NextValidID
	p.box.push(func(h Handler) { h.OnNextValidOrderID(next) })

	t := time.NewTicker(p.cfg.TickInterval)
	defer t.Stop()
	deliver := func() {
		for _, fn := range p.box.take() {
			fn(h)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.box.signal:
			deliver()
		case <-t.C:
			p.Step()
			deliver()
		}
	}
}

// Step moves every subscribed price once, emits ticks and matches open orders.
func (p *Paper) Step() {
	p.mu.Lock()
	defer p.mu.Unlock()

	moved := make(map[string]bool)
	reqIDs := make([]int, 0, len(p.subs))
	for id := range p.subs {
		reqIDs = append(reqIDs, id)
	}
	sort.Ints(reqIDs)
	for _, id := range reqIDs {
		sym := p.subs[id]
		if !moved[sym] {
			p.walk(sym)
			moved[sym] = true
		}
		last, low := p.prices[sym], p.lows[sym]
		reqID := id
		p.box.push(func(h Handler) {
			h.OnPriceTick(reqID, TickLast, last)
			h.OnPriceTick(reqID, TickLow, low)
		})
	}

	ids := make([]int64, 0, len(p.orders))
	for id := range p.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p.match(p.orders[id])
	}
}

func (p *Paper) walk(sym string) {
	px, ok := p.prices[sym]
	if !ok {
		return
	}
	move := (p.rng.Float64()*2-1)*p.cfg.StepPercent + p.cfg.DriftPercent
	next := px.Mul(decimal.NewFromFloat(1 + move/100)).Round(4)
	if !next.IsPositive() {
		next = decimal.New(1, -4)
	}
	p.prices[sym] = next
	if low, ok := p.lows[sym]; !ok || next.LessThan(low) {
		p.lows[sym] = next
	}
}

func (p *Paper) match(o *paperOrder) {
	if !o.open() {
		return
	}
	px, ok := p.prices[o.spec.Symbol]
	switch o.order.OrderType {
	case TypeLimit:
		if !ok {
			return
		}
		if o.order.Action == ActionBuy && px.GreaterThan(o.order.LimitPrice) {
			return
		}
		if o.order.Action == ActionSell && px.LessThan(o.order.LimitPrice) {
			return
		}
	case TypeMarketOnClose:
	default:
		return
	}
	lot := o.remaining()
	if p.cfg.FillLot > 0 {
		lot = decimal.Min(lot, decimal.NewFromInt(p.cfg.FillLot))
	}
	o.filled = o.filled.Add(lot)
	p.pushStatus(o)
}

func (p *Paper) pushStatus(o *paperOrder) {
	status := "Submitted"
	switch {
	case o.cancelled:
		status = "Cancelled"
	case !o.remaining().IsPositive():
		status = "Filled"
	}
	id, filled, remaining := o.id, o.filled, o.remaining()
	p.box.push(func(h Handler) { h.OnOrderStatus(id, status, filled, remaining) })
}

func (p *Paper) SubscribeMarketData(reqID int, spec contract.Spec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[reqID]; ok {
		return fmt.Errorf("request %d already subscribed", reqID)
	}
	p.subs[reqID] = spec.Symbol
	if _, ok := p.prices[spec.Symbol]; !ok {
		p.prices[spec.Symbol] = decimal.NewFromInt(100)
	}
	if _, ok := p.lows[spec.Symbol]; !ok {
		p.lows[spec.Symbol] = p.prices[spec.Symbol]
	}
	return nil
}

func (p *Paper) UnsubscribeMarketData(reqID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[reqID]; !ok {
		return fmt.Errorf("request %d: %w", reqID, ErrUnknownRequest)
	}
	delete(p.subs, reqID)
	return nil
}

func (p *Paper) PlaceOrder(orderID int64, spec contract.Spec, o OrderSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; ok {
		return fmt.Errorf("order %d already placed", orderID)
	}
	po := &paperOrder{id: orderID, spec: spec, order: o}
	p.orders[orderID] = po
	p.box.push(func(h Handler) { h.OnOpenOrder(orderID, spec) })
	p.pushStatus(po)
	return nil
}

func (p *Paper) CancelOrder(orderID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrUnknownOrder)
	}
	if !o.open() {
		return nil
	}
	o.cancelled = true
	p.pushStatus(o)
	return nil
}

func (p *Paper) RequestPortfolioUpdates(enable bool) error {
	if !enable {
		return nil
	}
	p.mu.Lock()
	holdings := append([]Holding(nil), p.cfg.Holdings...)
	prices := make([]decimal.Decimal, len(holdings))
	for i, h := range holdings {
		prices[i] = p.prices[contract.NormalizeSymbol(h.Symbol)]
	}
	p.mu.Unlock()

	account := p.cfg.Account
	p.box.push(func(h Handler) {
		for i, hd := range holdings {
			h.OnPortfolioPosition(contract.StockSpec(hd.Symbol), hd.Position, prices[i], hd.AverageCost)
		}
		h.OnAccountDownloadEnd(account)
	})
	return nil
}
