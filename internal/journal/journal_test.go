package journal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dip-trader/internal/events"
	"dip-trader/pkg/db"
)

func openDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return database
}

func TestRecordWritesTables(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	j, err := New(ctx, database, "s1", 2, decimal.NewFromInt(10), zerolog.Nop())
	require.NoError(t, err)

	now := time.Now()
	j.Record(events.Envelope{Event: events.EventSymbolAdmitted, At: now, Payload: events.SymbolAdmitted{Symbol: "B", OpeningPrice: decimal.NewFromInt(50)}})
	j.Record(events.Envelope{Event: events.EventOrderPlaced, At: now, Payload: events.OrderPlaced{
		OrderID: 100, Class: "buy", Symbol: "B", Action: "BUY", OrderType: "LMT",
		Quantity: decimal.NewFromInt(23), LimitPrice: decimal.RequireFromString("42.5"),
	}})
	j.Record(events.Envelope{Event: events.EventOrderStatus, At: now, Payload: events.OrderStatus{
		OrderID: 100, Class: "buy", Status: "Filled", State: "fully_filled",
		Filled: decimal.NewFromInt(23), Remaining: decimal.Zero,
	}})
	j.Record(events.Envelope{Event: events.EventBatchRotated, At: now, Payload: events.BatchRotated{Batch: 1}})
	require.NoError(t, j.Flush())

	n, err := database.CountAdmissions(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	orders, err := database.ListOrders(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "23", orders[0].Quantity)

	hist, err := database.ListOrderStatus(ctx, "s1", 100)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "0", hist[0].Remaining)

	all, err := database.CountEvents(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, 4, all)

	m := j.Writer().Metrics()
	assert.Equal(t, uint64(7), m.TotalWrites)
	assert.Zero(t, m.TotalErrors)
}

func TestStartDrainsBusAndEndsSession(t *testing.T) {
	database := openDB(t)
	bus := events.NewBus()
	j, err := New(context.Background(), database, "s2", 2, decimal.NewFromInt(13), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := j.Start(ctx, bus)
	bus.Publish(events.EventSymbolRejected, events.SymbolRejected{Symbol: "X", Reason: "duplicate"})

	require.Eventually(t, func() bool {
		bus.Publish(events.EventSubscribed, events.Subscription{Symbol: "A", RequestID: 1})
		_ = j.Flush()
		n, err := database.CountEvents(context.Background(), "s2", string(events.EventSubscribed))
		return err == nil && n > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	n, err := database.CountEvents(context.Background(), "s2", string(events.EventSymbolRejected))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	s, err := database.GetSession(context.Background(), "s2")
	require.NoError(t, err)
	assert.NotNil(t, s.EndedAt)
}

func TestWriterRollsBackBadBatch(t *testing.T) {
	database := openDB(t)
	w := NewWriter(database, 10, time.Hour, zerolog.Nop())
	defer w.Close()

	w.Write(db.InsertEvent("s", "ok", "{}", time.Now()))
	w.Write(db.Statement{Query: "INSERT INTO nowhere VALUES (1)"})
	assert.Equal(t, 2, w.Pending())
	assert.Error(t, w.Flush())
	assert.Equal(t, 0, w.Pending())

	n, err := database.CountEvents(context.Background(), "s", "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(1), w.Metrics().TotalErrors)
}
