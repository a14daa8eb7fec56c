package events

import "github.com/shopspring/decimal"

// Event enumerates the topics published during a trading session.
type Event string

const (
	EventSymbolAdmitted  Event = "symbol.admitted"
	EventSymbolRejected  Event = "symbol.rejected"
	EventSubscribed      Event = "market_data.subscribed"
	EventUnsubscribed    Event = "market_data.unsubscribed"
	EventBatchRotated    Event = "watchlist.rotated"
	EventTriggerFired    Event = "trigger.fired"
	EventOrderPlaced     Event = "order.placed"
	EventOrderStatus     Event = "order.status"
	EventCancelRequested Event = "order.cancel_requested"
	EventDeadlineFired   Event = "schedule.deadline"
)

// All lists every topic, for subscribers that want the full stream.
var All = []Event{
	EventSymbolAdmitted,
	EventSymbolRejected,
	EventSubscribed,
	EventUnsubscribed,
	EventBatchRotated,
	EventTriggerFired,
	EventOrderPlaced,
	EventOrderStatus,
	EventCancelRequested,
	EventDeadlineFired,
}

type SymbolAdmitted struct {
	Symbol       string          `json:"symbol"`
	OpeningPrice decimal.Decimal `json:"opening_price"`
	Batch        int             `json:"batch"`
}

type SymbolRejected struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

type Subscription struct {
	Symbol    string `json:"symbol"`
	RequestID int    `json:"request_id"`
}

type BatchRotated struct {
	Batch   int      `json:"batch"`
	Symbols []string `json:"symbols"`
}

type TriggerFired struct {
	Symbol          string          `json:"symbol"`
	OpeningPrice    decimal.Decimal `json:"opening_price"`
	Price           decimal.Decimal `json:"price"`
	DecreasePercent decimal.Decimal `json:"decrease_percent"`
}

type OrderPlaced struct {
	OrderID    int64           `json:"order_id"`
	Class      string          `json:"class"`
	Symbol     string          `json:"symbol"`
	Action     string          `json:"action"`
	OrderType  string          `json:"order_type"`
	Quantity   decimal.Decimal `json:"quantity"`
	LimitPrice decimal.Decimal `json:"limit_price"`
}

type OrderStatus struct {
	OrderID   int64           `json:"order_id"`
	Class     string          `json:"class"`
	Symbol    string          `json:"symbol,omitempty"`
	Status    string          `json:"status"`
	Filled    decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`
	State     string          `json:"state"`
}

type CancelRequested struct {
	OrderID int64 `json:"order_id"`
}

type DeadlineFired struct {
	Name    string `json:"name"`
	Actions int    `json:"actions"`
}
