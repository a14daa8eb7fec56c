// Package session drives one trading day: it admits symbols, rotates market-data
// subscriptions through the watchlist, turns qualifying ticks into limit buys and
// liquidates carried positions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dip-trader/internal/contract"
	"dip-trader/internal/events"
	"dip-trader/internal/gateway"
	"dip-trader/internal/order"
	"dip-trader/internal/watchlist"
)

var (
	ErrEmptySymbol = errors.New("empty symbol")
	ErrNotRunning  = errors.New("session not accepting admissions")
)

// Config holds the trading parameters of a session.
type Config struct {
	Capacity           int
	MaxBatches         int
	RotationInterval   time.Duration
	DefaultThreshold   decimal.Decimal
	ThresholdOverrides map[string]decimal.Decimal
	CapitalPerPosition decimal.Decimal
	BuyDiscountPercent decimal.Decimal
	SellMarkupPercent  decimal.Decimal
	TriggerFields      []gateway.TickField
	StrictInvariants   bool
	AdmissionBuffer    int
}

// Admission is a symbol offered for monitoring with its opening price.
type Admission struct {
	Symbol       string
	OpeningPrice decimal.Decimal
}

// Metrics receives counters from the controller.
type Metrics interface {
	SymbolAdmitted()
	SymbolRejected(reason string)
	TriggerFired()
	OrderPlaced(class order.Class)
	OrderStatus(class order.Class, status string)
	ActiveSubscriptions(n int)
	InvariantViolation(kind string)
	TickProcessed(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) SymbolAdmitted()                 {}
func (nopMetrics) SymbolRejected(string)           {}
func (nopMetrics) TriggerFired()                   {}
func (nopMetrics) OrderPlaced(order.Class)         {}
func (nopMetrics) OrderStatus(order.Class, string) {}
func (nopMetrics) ActiveSubscriptions(int)         {}
func (nopMetrics) InvariantViolation(string)       {}
func (nopMetrics) TickProcessed(time.Duration)     {}

// Option customizes a Controller.
type Option func(*Controller)

// WithBus publishes session events to b.
func WithBus(b *events.Bus) Option {
	return func(c *Controller) { c.bus = b }
}

func WithMetrics(m Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the session's registry, watchlist and order books and is the
// gateway.Handler for venue callbacks. One mutex serializes callbacks, admissions,
// rotation and scheduled actions.
type Controller struct {
	cfg     Config
	gw      gateway.Gateway
	bus     *events.Bus
	metrics Metrics
	log     zerolog.Logger
	now     func() time.Time

	id         string
	admissions chan Admission
	triggerOn  map[gateway.TickField]bool

	mu                 sync.Mutex
	registry           *contract.Registry
	holdings           *contract.Registry
	batches            *watchlist.BatchSet
	tracker            *order.Tracker
	seq                order.Sequence
	nextReqID          int
	started            bool
	startedAt          time.Time
	portfolioRequested bool
	liquidated         bool
}

var _ gateway.Handler = (*Controller)(nil)

// New builds a controller. Capacity must be positive.
func New(cfg Config, gw gateway.Gateway, opts ...Option) (*Controller, error) {
	batches, err := watchlist.NewBatchSet(cfg.Capacity, cfg.MaxBatches)
	if err != nil {
		return nil, err
	}
	if cfg.AdmissionBuffer <= 0 {
		cfg.AdmissionBuffer = 256
	}
	if len(cfg.TriggerFields) == 0 {
		cfg.TriggerFields = []gateway.TickField{gateway.TickLow}
	}
	c := &Controller{
		cfg:        cfg,
		gw:         gw,
		metrics:    nopMetrics{},
		log:        zerolog.Nop(),
		now:        time.Now,
		id:         uuid.NewString(),
		admissions: make(chan Admission, cfg.AdmissionBuffer),
		triggerOn:  make(map[gateway.TickField]bool, len(cfg.TriggerFields)),
		registry:   contract.NewRegistry(),
		holdings:   contract.NewRegistry(),
		batches:    batches,
		nextReqID:  1,
	}
	for _, f := range cfg.TriggerFields {
		c.triggerOn[f] = true
	}
	for _, o := range opts {
		o(c)
	}
	c.tracker = order.NewTracker(c.now)
	c.log = c.log.With().Str("session", c.id).Logger()
	return c, nil
}

// ID identifies this session in logs and the journal.
func (c *Controller) ID() string { return c.id }

// Tracker exposes the order books for read-only consumers such as the scheduler.
func (c *Controller) Tracker() *order.Tracker { return c.tracker }

// Start admits the initial symbols and subscribes the first batch.
func (c *Controller) Start(initial []Admission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range initial {
		_ = c.admit(a)
	}
	c.started = true
	c.startedAt = c.now()
	c.rotate()
	c.log.Info().
		Int("admitted", c.registry.Len()).
		Int("batches", c.batches.BatchCount()).
		Msg("session started")
}

// AdmitSymbol queues a symbol discovered mid-session. Run performs the admission.
func (c *Controller) AdmitSymbol(ctx context.Context, symbol string, openingPrice decimal.Decimal) error {
	if contract.NormalizeSymbol(symbol) == "" {
		return ErrEmptySymbol
	}
	select {
	case c.admissions <- Admission{Symbol: symbol, OpeningPrice: openingPrice}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes queued admissions and rotates the watchlist until ctx is canceled.
func (c *Controller) Run(ctx context.Context) {
	var tick <-chan time.Time
	if c.cfg.RotationInterval > 0 {
		t := time.NewTicker(c.cfg.RotationInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.admissions:
			c.mu.Lock()
			_ = c.admit(a)
			c.mu.Unlock()
		case <-tick:
			c.RotateBatch()
		}
	}
}

// RotateBatch moves market-data subscriptions to the next watchlist batch.
func (c *Controller) RotateBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotate()
}

func (c *Controller) threshold(symbol string) decimal.Decimal {
	if pct, ok := c.cfg.ThresholdOverrides[symbol]; ok {
		return pct
	}
	return c.cfg.DefaultThreshold
}

func (c *Controller) admit(a Admission) error {
	sym := contract.NormalizeSymbol(a.Symbol)
	if sym == "" {
		return c.reject(a.Symbol, ErrEmptySymbol)
	}
	if c.registry.Contains(sym) || c.batches.ContainsSymbol(sym) {
		return c.reject(sym, fmt.Errorf("%s: %w", sym, contract.ErrDuplicateSymbol))
	}
	ct := contract.New(sym, c.threshold(sym))
	if _, err := ct.SetOpeningPrice(a.OpeningPrice); err != nil {
		return c.reject(sym, err)
	}
	idx, err := c.batches.AddContract(ct)
	if err != nil {
		return c.reject(sym, err)
	}
	if err := c.registry.Add(ct); err != nil {
		c.batches.RemoveContract(ct)
		return c.reject(sym, err)
	}

	c.metrics.SymbolAdmitted()
	c.bus.Publish(events.EventSymbolAdmitted, events.SymbolAdmitted{Symbol: sym, OpeningPrice: a.OpeningPrice, Batch: idx})
	c.log.Debug().Str("symbol", sym).Str("open", a.OpeningPrice.String()).Int("batch", idx).Msg("symbol admitted")

	if c.started && c.registry.ActiveSubscriptions() < c.cfg.Capacity {
		c.subscribe(ct)
	}
	return nil
}

func (c *Controller) reject(symbol string, err error) error {
	reason := "invalid"
	switch {
	case errors.Is(err, contract.ErrDuplicateSymbol):
		reason = "duplicate"
	case errors.Is(err, watchlist.ErrCapacityExhausted):
		reason = "capacity"
	}
	c.metrics.SymbolRejected(reason)
	c.bus.Publish(events.EventSymbolRejected, events.SymbolRejected{Symbol: symbol, Reason: err.Error()})
	c.log.Warn().Err(err).Str("symbol", symbol).Str("reason", reason).Msg("admission refused")
	return err
}

func (c *Controller) rotate() {
	b, ok := c.batches.NextBatch()
	if !ok {
		return
	}
	keep := make(map[string]bool, len(b.Contracts))
	for _, ct := range b.Contracts {
		keep[ct.Symbol()] = true
	}
	for _, ct := range c.registry.All() {
		if ct.SubscriptionID() != contract.NoSubscription && !keep[ct.Symbol()] {
			c.unsubscribe(ct)
		}
	}
	for _, ct := range b.Contracts {
		if ct.SubscriptionID() == contract.NoSubscription && !ct.HasPendingOrder() {
			c.subscribe(ct)
		}
	}
	c.bus.Publish(events.EventBatchRotated, events.BatchRotated{Batch: b.Index, Symbols: b.Symbols()})
	c.log.Debug().Int("batch", b.Index).Int("size", len(b.Contracts)).Msg("watchlist rotated")
}

func (c *Controller) subscribe(ct *contract.Contract) {
	reqID := c.nextReqID
	c.nextReqID++
	res, err := c.registry.BindSubscription(ct.Symbol(), reqID)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", ct.Symbol()).Msg("bind subscription")
		return
	}
	if !res.OK() {
		c.violation("subscription_id", fmt.Errorf("%s: subscription id: %w", ct.Symbol(), res.Err()))
		return
	}
	if err := c.gw.SubscribeMarketData(reqID, ct.Spec()); err != nil {
		c.log.Error().Err(err).Str("symbol", ct.Symbol()).Int("req_id", reqID).Msg("subscribe market data")
	}
	c.metrics.ActiveSubscriptions(c.registry.ActiveSubscriptions())
	c.bus.Publish(events.EventSubscribed, events.Subscription{Symbol: ct.Symbol(), RequestID: reqID})
}

func (c *Controller) unsubscribe(ct *contract.Contract) {
	reqID, had := c.registry.ReleaseSubscription(ct.Symbol())
	if !had {
		return
	}
	if err := c.gw.UnsubscribeMarketData(reqID); err != nil {
		c.log.Error().Err(err).Str("symbol", ct.Symbol()).Int("req_id", reqID).Msg("unsubscribe market data")
	}
	c.metrics.ActiveSubscriptions(c.registry.ActiveSubscriptions())
	c.bus.Publish(events.EventUnsubscribed, events.Subscription{Symbol: ct.Symbol(), RequestID: reqID})
}

// violation reports a double assignment or similar programming error. Strict
// sessions panic; others log and carry on.
func (c *Controller) violation(kind string, err error) {
	c.metrics.InvariantViolation(kind)
	if c.cfg.StrictInvariants {
		panic(err)
	}
	c.log.Error().Err(err).Str("kind", kind).Msg("invariant violation ignored")
}
