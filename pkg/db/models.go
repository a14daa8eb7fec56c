package db

import (
	"context"
	"time"
)

// Session is one trading day's run.
type Session struct {
	ID               string
	StartedAt        time.Time
	EndedAt          *time.Time
	Capacity         int
	ThresholdPercent string
}

// Admission records a symbol entering the watchlist.
type Admission struct {
	SessionID    string
	Symbol       string
	OpeningPrice string
	Batch        int
	AdmittedAt   time.Time
}

// Order records an order placed during a session.
type Order struct {
	SessionID  string
	OrderID    int64
	Class      string
	Symbol     string
	Action     string
	OrderType  string
	Quantity   string
	LimitPrice string
	PlacedAt   time.Time
}

// OrderStatus is one venue status report.
type OrderStatus struct {
	SessionID  string
	OrderID    int64
	Class      string
	Status     string
	State      string
	Filled     string
	Remaining  string
	ReportedAt time.Time
}

// Statement is a write the journal batches into a transaction.
type Statement struct {
	Query string
	Args  []any
}

func (d *Database) CreateSession(ctx context.Context, s Session) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, capacity, threshold_percent)
		VALUES (?, ?, ?, ?)
	`, s.ID, s.StartedAt, s.Capacity, s.ThresholdPercent)
	return err
}

func (d *Database) EndSession(ctx context.Context, id string, at time.Time) error {
	res, err := d.DB.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAdmission returns the statement that records a.
func InsertAdmission(a Admission) Statement {
	return Statement{
		Query: `INSERT OR IGNORE INTO admissions (session_id, symbol, opening_price, batch, admitted_at) VALUES (?, ?, ?, ?, ?)`,
		Args:  []any{a.SessionID, a.Symbol, a.OpeningPrice, a.Batch, a.AdmittedAt},
	}
}

// InsertOrder returns the statement that records o.
func InsertOrder(o Order) Statement {
	return Statement{
		Query: `INSERT OR IGNORE INTO orders (session_id, order_id, class, symbol, action, order_type, quantity, limit_price, placed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Args:  []any{o.SessionID, o.OrderID, o.Class, o.Symbol, o.Action, o.OrderType, o.Quantity, o.LimitPrice, o.PlacedAt},
	}
}

// InsertOrderStatus returns the statement that records s.
func InsertOrderStatus(s OrderStatus) Statement {
	return Statement{
		Query: `INSERT INTO order_status (session_id, order_id, class, status, state, filled, remaining, reported_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		Args:  []any{s.SessionID, s.OrderID, s.Class, s.Status, s.State, s.Filled, s.Remaining, s.ReportedAt},
	}
}

// InsertEvent returns the statement that stores a raw event payload.
func InsertEvent(sessionID, topic, payload string, at time.Time) Statement {
	return Statement{
		Query: `INSERT INTO events (session_id, topic, payload, created_at) VALUES (?, ?, ?, ?)`,
		Args:  []any{sessionID, topic, payload, at},
	}
}
