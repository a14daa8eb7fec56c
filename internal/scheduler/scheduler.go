// Package scheduler fires the two end-of-day cleanup actions: cancel unfilled
// sell limits, then send whatever is still open to the closing auction.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dip-trader/internal/events"
	"dip-trader/internal/order"
)

const (
	DeadlineCancellation = "cancellation"
	DeadlineMarketClose  = "market_close"
)

var (
	ErrDeadlineOrder = errors.New("cancellation deadline must precede market close deadline")
	ErrAlreadyArmed  = errors.New("scheduler already armed")
)

// TimeOfDay is a wall-clock time in the market's time zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: bad minute", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) before(o TimeOfDay) bool {
	return t.Hour*60+t.Minute < o.Hour*60+o.Minute
}

// On returns the instant t occurs on day's date in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Config sets the two daily deadlines.
type Config struct {
	Cancellation TimeOfDay
	MarketClose  TimeOfDay
	Location     *time.Location
}

// Validate checks the deadlines are ordered.
func (c Config) Validate() error {
	if !c.Cancellation.before(c.MarketClose) {
		return fmt.Errorf("%s >= %s: %w", c.Cancellation, c.MarketClose, ErrDeadlineOrder)
	}
	return nil
}

// Source is the read side of the sell-limit book.
type Source interface {
	UnfilledOrderIDs() []int64
	SymbolsAndRemainingQuantities() map[string]decimal.Decimal
}

// Actions issues commands through the session.
type Actions interface {
	CancelSellLimit(orderID int64) error
	PlaceMarketOnClose(symbol string, qty decimal.Decimal) (int64, error)
}

// Scheduler arms both deadlines once per session.
type Scheduler struct {
	cfg     Config
	src     Source
	actions Actions
	bus     *events.Bus
	log     zerolog.Logger
	now     func() time.Time
	after   func(time.Duration) <-chan time.Time

	armed       sync.Once
	cancelOnce  sync.Once
	closeOnce   sync.Once
	mu          sync.Mutex
	isArmed     bool
	cancelled   []int64
	closeOrders map[string]int64
	done        chan struct{}
}

type Option func(*Scheduler)

func WithBus(b *events.Bus) Option { return func(s *Scheduler) { s.bus = b } }

func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock swaps the wall clock and timer source.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

func New(cfg Config, src Source, actions Actions, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Scheduler{
		cfg:         cfg,
		src:         src,
		actions:     actions,
		log:         zerolog.Nop(),
		now:         time.Now,
		after:       time.After,
		closeOrders: make(map[string]int64),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Arm starts waiting for today's deadlines. A deadline already behind us fires at
// once. Cancellation always completes before the market-close action starts.
func (s *Scheduler) Arm(ctx context.Context) error {
	err := ErrAlreadyArmed
	s.armed.Do(func() {
		err = nil
		s.mu.Lock()
		s.isArmed = true
		s.mu.Unlock()

		today := s.now()
		cancelAt := s.cfg.Cancellation.On(today, s.cfg.Location)
		closeAt := s.cfg.MarketClose.On(today, s.cfg.Location)
		s.log.Info().Time("cancellation", cancelAt).Time("market_close", closeAt).Msg("deadlines armed")

		go func() {
			defer close(s.done)
			if !s.waitUntil(ctx, cancelAt) {
				return
			}
			s.RunCancellation()
			if !s.waitUntil(ctx, closeAt) {
				return
			}
			s.RunMarketClose()
		}()
	})
	return err
}

// Done is closed once the market-close action has run or the arming context ended.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) waitUntil(ctx context.Context, at time.Time) bool {
	if d := at.Sub(s.now()); d > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-s.after(d):
		}
	}
	return ctx.Err() == nil
}

// RunCancellation cancels every unfilled sell limit. Ids that already left the
// live set are logged and skipped. It runs at most once.
func (s *Scheduler) RunCancellation() []int64 {
	s.cancelOnce.Do(func() {
		ids := s.src.UnfilledOrderIDs()
		var cancelled []int64
		for _, id := range ids {
			if err := s.actions.CancelSellLimit(id); err != nil {
				if errors.Is(err, order.ErrOrderNotLive) {
					s.log.Info().Int64("order_id", id).Msg("order left live set before cancel")
				} else {
					s.log.Warn().Err(err).Int64("order_id", id).Msg("cancel sell limit")
				}
				continue
			}
			cancelled = append(cancelled, id)
		}
		s.mu.Lock()
		s.cancelled = cancelled
		s.mu.Unlock()
		s.bus.Publish(events.EventDeadlineFired, events.DeadlineFired{Name: DeadlineCancellation, Actions: len(cancelled)})
		s.log.Info().Int("unfilled", len(ids)).Int("cancelled", len(cancelled)).Msg("cancellation deadline reached")
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.cancelled...)
}

// RunMarketClose sends a market-on-close sell for each symbol with quantity left.
// It runs at most once.
func (s *Scheduler) RunMarketClose() map[string]int64 {
	s.closeOnce.Do(func() {
		remaining := s.src.SymbolsAndRemainingQuantities()
		symbols := make([]string, 0, len(remaining))
		for sym := range remaining {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		placed := make(map[string]int64, len(symbols))
		for _, sym := range symbols {
			id, err := s.actions.PlaceMarketOnClose(sym, remaining[sym])
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Str("qty", remaining[sym].String()).Msg("market on close")
				continue
			}
			placed[sym] = id
		}
		s.mu.Lock()
		s.closeOrders = placed
		s.mu.Unlock()
		s.bus.Publish(events.EventDeadlineFired, events.DeadlineFired{Name: DeadlineMarketClose, Actions: len(placed)})
		s.log.Info().Int("orders", len(placed)).Msg("market close deadline reached")
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.closeOrders))
	for k, v := range s.closeOrders {
		out[k] = v
	}
	return out
}

// Armed reports whether Arm has been called.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isArmed
}
