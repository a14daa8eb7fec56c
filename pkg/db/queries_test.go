package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, ApplyMigrations(database))
	return database
}

func TestQueriesRequireSessionID(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_, err := database.GetSession(ctx, "")
	assert.ErrorIs(t, err, ErrSessionIDRequired)
	_, err = database.ListOrders(ctx, "")
	assert.ErrorIs(t, err, ErrSessionIDRequired)
	_, err = database.ListOrderStatus(ctx, "", 1)
	assert.ErrorIs(t, err, ErrSessionIDRequired)
	_, err = database.CountEvents(ctx, "", "")
	assert.ErrorIs(t, err, ErrSessionIDRequired)
}

func TestSessionLifecycle(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	require.NoError(t, database.CreateSession(ctx, Session{ID: "s1", StartedAt: start, Capacity: 90, ThresholdPercent: "13"}))
	s, err := database.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 90, s.Capacity)
	assert.Nil(t, s.EndedAt)

	require.NoError(t, database.EndSession(ctx, "s1", start.Add(7*time.Hour)))
	s, err = database.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s.EndedAt)

	_, err = database.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, database.EndSession(ctx, "missing", start), ErrNotFound)
}

func TestStatementsAndIsolation(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stmts := []Statement{
		InsertAdmission(Admission{SessionID: "a", Symbol: "B", OpeningPrice: "50", Batch: 0, AdmittedAt: now}),
		InsertAdmission(Admission{SessionID: "a", Symbol: "B", OpeningPrice: "50", Batch: 0, AdmittedAt: now}),
		InsertOrder(Order{SessionID: "a", OrderID: 7, Class: "buy", Symbol: "B", Action: "BUY", OrderType: "LMT", Quantity: "23", LimitPrice: "42.5", PlacedAt: now}),
		InsertOrder(Order{SessionID: "b", OrderID: 7, Class: "buy", Symbol: "Z", Action: "BUY", OrderType: "LMT", Quantity: "1", PlacedAt: now}),
		InsertOrderStatus(OrderStatus{SessionID: "a", OrderID: 7, Class: "buy", Status: "Submitted", State: "created", Filled: "0", Remaining: "23", ReportedAt: now}),
		InsertOrderStatus(OrderStatus{SessionID: "a", OrderID: 7, Class: "buy", Status: "Filled", State: "fully_filled", Filled: "23", Remaining: "0", ReportedAt: now}),
		InsertEvent("a", "order.placed", `{}`, now),
	}
	for _, st := range stmts {
		_, err := database.DB.ExecContext(ctx, st.Query, st.Args...)
		require.NoError(t, err)
	}

	n, err := database.CountAdmissions(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	orders, err := database.ListOrders(ctx, "a")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "B", orders[0].Symbol)
	assert.Equal(t, "42.5", orders[0].LimitPrice)

	hist, err := database.ListOrderStatus(ctx, "a", 7)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "Filled", hist[1].Status)
	assert.Equal(t, "fully_filled", hist[1].State)

	events, err := database.CountEvents(ctx, "a", "order.placed")
	require.NoError(t, err)
	assert.Equal(t, 1, events)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, ApplyMigrations(database))
	ok, err := columnExists(database.DB, "order_status", "class")
	require.NoError(t, err)
	assert.True(t, ok)
}
