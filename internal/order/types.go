package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the local lifecycle position of an order.
type State int

const (
	StateCreated State = iota
	StatePartiallyFilled
	StateFullyFilled
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePartiallyFilled:
		return "partially_filled"
	case StateFullyFilled:
		return "fully_filled"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == StateFullyFilled || s == StateCancelled
}

// Class separates the books orders are kept in.
type Class string

const (
	ClassBuy           Class = "buy"
	ClassSellLimit     Class = "sell_limit"
	ClassMarketOnClose Class = "market_on_close"
)

// Status is the venue-reported order status string.
type Status string

const (
	StatusPendingSubmit Status = "PendingSubmit"
	StatusPreSubmitted  Status = "PreSubmitted"
	StatusSubmitted     Status = "Submitted"
	StatusFilled        Status = "Filled"
	StatusPendingCancel Status = "PendingCancel"
	StatusCancelled     Status = "Cancelled"
	StatusApiCancelled  Status = "ApiCancelled"
	StatusInactive      Status = "Inactive"
)

// IsCancellation reports whether the venue confirmed the order is gone.
func (s Status) IsCancellation() bool {
	return s == StatusCancelled || s == StatusApiCancelled || s == StatusInactive
}

// Record is a snapshot of one order's accumulated fill state.
type Record struct {
	ID        int64           `json:"id"`
	Class     Class           `json:"class"`
	Symbol    string          `json:"symbol,omitempty"`
	Filled    decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`
	State     State           `json:"-"`
	StateName string          `json:"state"`
	Live      bool            `json:"live"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsFullyFilled reports whether the venue reported nothing left to fill.
func (r Record) IsFullyFilled() bool {
	return r.State == StateFullyFilled
}
