package gateway

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dip-trader/internal/contract"
)

// Paced forwards requests to another Gateway no faster than the venue's message
// limit. Requests are queued in call order and released by Run.
type Paced struct {
	inner   Gateway
	limiter *rate.Limiter
	box     *mailbox[pacedCall]
	log     zerolog.Logger
}

type pacedCall struct {
	name string
	fn   func() error
}

// NewPaced wraps inner with a limit of perSecond requests and the given burst.
func NewPaced(inner Gateway, perSecond float64, burst int, log zerolog.Logger) *Paced {
	if burst <= 0 {
		burst = 1
	}
	return &Paced{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		box:     newMailbox[pacedCall](),
		log:     log,
	}
}

// Run releases queued requests until ctx is canceled.
func (p *Paced) Run(ctx context.Context) {
	p.box.drain(ctx, func(c pacedCall) {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		if err := c.fn(); err != nil {
			p.log.Warn().Err(err).Str("request", c.name).Msg("paced request failed")
		}
	})
}

// Pending returns how many requests are waiting for a slot.
func (p *Paced) Pending() int { return p.box.len() }

func (p *Paced) SubscribeMarketData(reqID int, spec contract.Spec) error {
	p.box.push(pacedCall{"subscribe", func() error { return p.inner.SubscribeMarketData(reqID, spec) }})
	return nil
}

func (p *Paced) UnsubscribeMarketData(reqID int) error {
	p.box.push(pacedCall{"unsubscribe", func() error { return p.inner.UnsubscribeMarketData(reqID) }})
	return nil
}

func (p *Paced) PlaceOrder(orderID int64, spec contract.Spec, o OrderSpec) error {
	p.box.push(pacedCall{"place_order", func() error { return p.inner.PlaceOrder(orderID, spec, o) }})
	return nil
}

func (p *Paced) CancelOrder(orderID int64) error {
	p.box.push(pacedCall{"cancel_order", func() error { return p.inner.CancelOrder(orderID) }})
	return nil
}

func (p *Paced) RequestPortfolioUpdates(enable bool) error {
	p.box.push(pacedCall{"portfolio_updates", func() error { return p.inner.RequestPortfolioUpdates(enable) }})
	return nil
}
