package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrSessionIDRequired = errors.New("session_id is required")
	ErrNotFound          = errors.New("record not found")
)

// GetSession loads one session row.
func (d *Database) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionIDRequired
	}
	var (
		s     Session
		ended sql.NullTime
	)
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, capacity, threshold_percent
		FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.StartedAt, &ended, &s.Capacity, &s.ThresholdPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if ended.Valid {
		s.EndedAt = &ended.Time
	}
	return &s, nil
}

// ListOrders returns a session's orders by id.
func (d *Database) ListOrders(ctx context.Context, sessionID string) ([]Order, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT session_id, order_id, class, symbol, action, order_type, quantity, COALESCE(limit_price, ''), placed_at
		FROM orders WHERE session_id = ? ORDER BY order_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.SessionID, &o.OrderID, &o.Class, &o.Symbol, &o.Action, &o.OrderType, &o.Quantity, &o.LimitPrice, &o.PlacedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListOrderStatus returns the status history of one order, oldest first.
func (d *Database) ListOrderStatus(ctx context.Context, sessionID string, orderID int64) ([]OrderStatus, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT session_id, order_id, class, status, state, filled, remaining, reported_at
		FROM order_status WHERE session_id = ? AND order_id = ? ORDER BY id
	`, sessionID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderStatus
	for rows.Next() {
		var s OrderStatus
		if err := rows.Scan(&s.SessionID, &s.OrderID, &s.Class, &s.Status, &s.State, &s.Filled, &s.Remaining, &s.ReportedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountAdmissions returns how many symbols a session admitted.
func (d *Database) CountAdmissions(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, ErrSessionIDRequired
	}
	var n int
	err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM admissions WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// CountEvents returns how many events of topic a session logged. An empty topic counts all.
func (d *Database) CountEvents(ctx context.Context, sessionID, topic string) (int, error) {
	if sessionID == "" {
		return 0, ErrSessionIDRequired
	}
	var n int
	var err error
	if topic == "" {
		err = d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	} else {
		err = d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id = ? AND topic = ?`, sessionID, topic).Scan(&n)
	}
	return n, err
}
