package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dip-trader/internal/contract"
	"dip-trader/internal/events"
	"dip-trader/internal/gateway"
	"dip-trader/internal/order"
	"dip-trader/internal/trigger"
)

// OnPriceTick evaluates the trigger for the subscribed contract. On a qualifying
// drop it places one limit buy: the contract is claimed, its market data is
// released and the order id joins the buy live set before the lock is dropped.
func (c *Controller) OnPriceTick(reqID int, field gateway.TickField, price decimal.Decimal) {
	if !c.triggerOn[field] {
		return
	}
	start := time.Now()
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.metrics.TickProcessed(time.Since(start))
	}()

	ct, ok := c.registry.BySubscription(reqID)
	if !ok {
		// ticks keep arriving briefly after an unsubscribe
		c.log.Debug().Int("req_id", reqID).Msg("tick for inactive request")
		return
	}
	if ct.HasPendingOrder() {
		return
	}
	hit, err := trigger.HasFallenBelowPercentage(price, ct)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", ct.Symbol()).Str("price", price.String()).Msg("tick rejected")
		return
	}
	if !hit {
		return
	}
	c.placeBuy(ct, price)
}

func (c *Controller) placeBuy(ct *contract.Contract, price decimal.Decimal) {
	opening, _ := ct.OpeningPrice()
	limit := trigger.LimitBuyPrice(price, c.cfg.BuyDiscountPercent)
	qty := trigger.ShareQuantity(c.cfg.CapitalPerPosition, limit)
	log := c.log.With().Str("symbol", ct.Symbol()).Str("price", price.String()).Str("limit", limit.String()).Logger()
	if qty <= 0 {
		log.Warn().Str("capital", c.cfg.CapitalPerPosition.String()).Msg("trigger fired but capital buys no shares")
		return
	}
	id, err := c.seq.Next()
	if err != nil {
		log.Warn().Err(err).Msg("trigger fired before order ids were available")
		return
	}
	if res := ct.MarkOrderPending(id); !res.OK() {
		c.violation("pending_order", fmt.Errorf("%s: pending order: %w", ct.Symbol(), res.Err()))
		return
	}

	c.metrics.TriggerFired()
	c.bus.Publish(events.EventTriggerFired, events.TriggerFired{
		Symbol:          ct.Symbol(),
		OpeningPrice:    opening,
		Price:           price,
		DecreasePercent: trigger.DecreasePercent(opening, price).Round(4),
	})

	c.unsubscribe(ct)
	c.batches.RemoveContract(ct)

	spec := gateway.LimitBuy(qty, limit)
	if err := c.gw.PlaceOrder(id, ct.Spec(), spec); err != nil {
		log.Error().Err(err).Int64("order_id", id).Msg("place limit buy")
	}
	if err := c.tracker.Buys().AddLive(id, ct.Symbol()); err != nil {
		c.violation("live_order_id", err)
	}
	c.publishPlaced(id, order.ClassBuy, ct.Symbol(), spec)
	log.Info().Int64("order_id", id).Int64("qty", qty).Msg("limit buy placed")
}

func (c *Controller) publishPlaced(id int64, class order.Class, symbol string, spec gateway.OrderSpec) {
	c.metrics.OrderPlaced(class)
	c.bus.Publish(events.EventOrderPlaced, events.OrderPlaced{
		OrderID:    id,
		Class:      string(class),
		Symbol:     symbol,
		Action:     spec.Action,
		OrderType:  spec.OrderType,
		Quantity:   spec.Quantity,
		LimitPrice: spec.LimitPrice,
	})
}

// OnOrderStatus folds a venue status into the book that placed the order.
func (c *Controller) OnOrderStatus(orderID int64, status string, filled, remaining decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	book, err := c.tracker.Route(orderID)
	if err != nil {
		c.log.Warn().Err(err).Int64("order_id", orderID).Str("status", status).Msg("status for unknown order")
		return
	}
	rec, err := book.ApplyStatus(orderID, order.Status(status), filled, remaining)
	if err != nil {
		c.log.Warn().Err(err).Int64("order_id", orderID).Msg("order status rejected")
		return
	}
	c.metrics.OrderStatus(book.Class(), status)
	c.bus.Publish(events.EventOrderStatus, events.OrderStatus{
		OrderID:   orderID,
		Class:     string(book.Class()),
		Symbol:    rec.Symbol,
		Status:    status,
		Filled:    rec.Filled,
		Remaining: rec.Remaining,
		State:     rec.StateName,
	})
	c.log.Info().
		Int64("order_id", orderID).
		Str("class", string(book.Class())).
		Str("symbol", rec.Symbol).
		Str("status", status).
		Str("filled", filled.String()).
		Str("remaining", remaining.String()).
		Msg("order status")
}

// OnOpenOrder learns the symbol behind an order id.
func (c *Controller) OnOpenOrder(orderID int64, spec contract.Spec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.tracker.NoteOpenOrder(orderID, spec.Symbol); err != nil {
		c.violation("order_symbol", err)
	}
}

// OnPortfolioPosition records a carried position for liquidation.
func (c *Controller) OnPortfolioPosition(spec contract.Spec, position, marketPrice, averageCost decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liquidated {
		c.log.Debug().Str("symbol", spec.Symbol).Str("position", position.String()).Msg("position update after liquidation")
		return
	}
	if !position.IsPositive() {
		return
	}
	ct, ok := c.holdings.Get(spec.Symbol)
	if !ok {
		ct = contract.New(spec.Symbol, c.threshold(spec.Symbol))
		if err := c.holdings.Add(ct); err != nil {
			c.log.Error().Err(err).Str("symbol", spec.Symbol).Msg("record holding")
			return
		}
	}
	ct.ObservePrice(marketPrice)
	if res := ct.SetPosition(position); !res.OK() {
		c.violation("position", fmt.Errorf("%s: position: %w", spec.Symbol, res.Err()))
	}
	if res := ct.SetAverageCost(averageCost); !res.OK() {
		c.violation("average_cost", fmt.Errorf("%s: average cost: %w", spec.Symbol, res.Err()))
	}
}

// OnNextValidOrderID seeds the order id sequence. The first seed also asks the
// venue for the portfolio, since the connection is ready at that point.
func (c *Controller) OnNextValidOrderID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq.Seed(id)
	c.log.Info().Int64("next_order_id", id).Msg("order ids seeded")
	if c.portfolioRequested {
		return
	}
	c.portfolioRequested = true
	if err := c.gw.RequestPortfolioUpdates(true); err != nil {
		c.log.Error().Err(err).Msg("request portfolio updates")
	}
}

// OnAccountDownloadEnd places a marked-up sell limit for every carried position.
// It runs once per session.
func (c *Controller) OnAccountDownloadEnd(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.liquidated {
		return
	}
	if !c.seq.Seeded() {
		c.log.Warn().Str("account", account).Msg("portfolio received before order ids; liquidation deferred")
		return
	}
	c.liquidated = true

	placed := 0
	for _, ct := range c.holdings.All() {
		pos, ok := ct.Position()
		cost, hasCost := ct.AverageCost()
		if !ok || !hasCost {
			continue
		}
		qty := pos.Floor().IntPart()
		if qty <= 0 {
			continue
		}
		id, err := c.seq.Next()
		if err != nil {
			c.log.Error().Err(err).Str("symbol", ct.Symbol()).Msg("allocate sell limit id")
			continue
		}
		spec := gateway.LimitSell(qty, trigger.SellLimitPrice(cost, c.cfg.SellMarkupPercent))
		if err := c.gw.PlaceOrder(id, ct.Spec(), spec); err != nil {
			c.log.Error().Err(err).Str("symbol", ct.Symbol()).Msg("place sell limit")
		}
		if err := c.tracker.SellLimits().AddLive(id, ct.Symbol()); err != nil {
			c.violation("live_order_id", err)
		}
		c.publishPlaced(id, order.ClassSellLimit, ct.Symbol(), spec)
		placed++
		c.log.Info().
			Str("symbol", ct.Symbol()).
			Int64("order_id", id).
			Int64("qty", qty).
			Str("limit", spec.LimitPrice.String()).
			Msg("sell limit placed")
	}
	c.log.Info().Str("account", account).Int("orders", placed).Msg("carried positions offered")
}

// CancelSellLimit asks the venue to cancel a sell limit and takes it out of the
// live set. The record itself changes only when the venue confirms.
func (c *Controller) CancelSellLimit(orderID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gw.CancelOrder(orderID); err != nil {
		c.log.Error().Err(err).Int64("order_id", orderID).Msg("cancel sell limit")
	}
	c.bus.Publish(events.EventCancelRequested, events.CancelRequested{OrderID: orderID})
	return c.tracker.SellLimits().RemoveFromLiveSet(orderID)
}

// PlaceMarketOnClose sells qty shares of symbol in the closing auction under a fresh order id.
func (c *Controller) PlaceMarketOnClose(symbol string, qty decimal.Decimal) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	shares := qty.Floor().IntPart()
	if shares <= 0 {
		return 0, fmt.Errorf("%s: %w", symbol, order.ErrInvalidQuantity)
	}
	id, err := c.seq.Next()
	if err != nil {
		return 0, err
	}
	spec := contract.StockSpec(symbol)
	o := gateway.MarketOnCloseSell(shares)
	if err := c.gw.PlaceOrder(id, spec, o); err != nil {
		c.log.Error().Err(err).Str("symbol", spec.Symbol).Msg("place market on close")
	}
	if err := c.tracker.MarketOnClose().AddLive(id, spec.Symbol); err != nil {
		c.violation("live_order_id", err)
	}
	c.publishPlaced(id, order.ClassMarketOnClose, spec.Symbol, o)
	c.log.Info().Str("symbol", spec.Symbol).Int64("order_id", id).Int64("qty", shares).Msg("market on close placed")
	return id, nil
}
