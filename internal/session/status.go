package session

import (
	"time"

	"dip-trader/internal/contract"
	"dip-trader/internal/order"
)

// Status summarizes the session for operators.
type Status struct {
	SessionID           string    `json:"session_id"`
	Started             bool      `json:"started"`
	StartedAt           time.Time `json:"started_at,omitempty"`
	Admitted            int       `json:"admitted"`
	Watching            int       `json:"watching"`
	Batches             int       `json:"batches"`
	Cursor              int       `json:"cursor"`
	Capacity            int       `json:"capacity"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	OrderIDsSeeded      bool      `json:"order_ids_seeded"`
	Liquidated          bool      `json:"liquidated"`
	LiveBuys            int       `json:"live_buys"`
	LiveSellLimits      int       `json:"live_sell_limits"`
	LiveMarketOnClose   int       `json:"live_market_on_close"`
	PendingAdmissions   int       `json:"pending_admissions"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		SessionID:           c.id,
		Started:             c.started,
		StartedAt:           c.startedAt,
		Admitted:            c.registry.Len(),
		Watching:            c.batches.Len(),
		Batches:             c.batches.BatchCount(),
		Cursor:              c.batches.CursorIndex(),
		Capacity:            c.batches.Capacity(),
		ActiveSubscriptions: c.registry.ActiveSubscriptions(),
		OrderIDsSeeded:      c.seq.Seeded(),
		Liquidated:          c.liquidated,
		LiveBuys:            c.tracker.Buys().LiveCount(),
		LiveSellLimits:      c.tracker.SellLimits().LiveCount(),
		LiveMarketOnClose:   c.tracker.MarketOnClose().LiveCount(),
		PendingAdmissions:   len(c.admissions),
	}
}

// BatchView lists one watchlist batch with its contracts' state.
type BatchView struct {
	Index     int             `json:"index"`
	Contracts []contract.View `json:"contracts"`
}

// Watchlist snapshots every batch in rotation order.
func (c *Controller) Watchlist() []BatchView {
	batches := c.batches.Batches()
	out := make([]BatchView, len(batches))
	for i, b := range batches {
		views := make([]contract.View, len(b.Contracts))
		for j, ct := range b.Contracts {
			views[j] = ct.View()
		}
		out[i] = BatchView{Index: b.Index, Contracts: views}
	}
	return out
}

// Contracts snapshots every admitted contract, including those already bought.
func (c *Controller) Contracts() []contract.View { return c.registry.Snapshot() }

// Holdings snapshots the carried positions discovered from the portfolio.
func (c *Controller) Holdings() []contract.View { return c.holdings.Snapshot() }

// Orders snapshots every tracked order.
func (c *Controller) Orders() []order.Record { return c.tracker.Snapshot() }
