// Package journal records a session's events into SQLite for later audit.
// Nothing reads the journal back during a session.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dip-trader/internal/events"
	"dip-trader/pkg/db"
)

// Journal subscribes to the bus and writes every event it sees.
type Journal struct {
	sessionID string
	db        *db.Database
	writer    *Writer
	log       zerolog.Logger
}

// New registers the session row and returns a journal ready to Run.
func New(ctx context.Context, database *db.Database, sessionID string, capacity int, threshold decimal.Decimal, log zerolog.Logger) (*Journal, error) {
	if err := database.CreateSession(ctx, db.Session{
		ID:               sessionID,
		StartedAt:        time.Now().UTC(),
		Capacity:         capacity,
		ThresholdPercent: threshold.String(),
	}); err != nil {
		return nil, err
	}
	return &Journal{
		sessionID: sessionID,
		db:        database,
		writer:    NewWriter(database, 100, time.Second, log),
		log:       log,
	}, nil
}

// Start subscribes to every session event before returning, then consumes them
// in the background until ctx is canceled. The returned channel closes once the
// last batch is flushed and the session row is closed.
func (j *Journal) Start(ctx context.Context, bus *events.Bus) <-chan struct{} {
	ch, unsub := bus.SubscribeMany(1024, events.All...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				j.close()
				return
			case env, ok := <-ch:
				if !ok {
					j.close()
					return
				}
				j.Record(env)
			}
		}
	}()
	return done
}

// Record turns one event into journal statements.
func (j *Journal) Record(env events.Envelope) {
	at := env.At.UTC()
	switch p := env.Payload.(type) {
	case events.SymbolAdmitted:
		j.writer.Write(db.InsertAdmission(db.Admission{
			SessionID:    j.sessionID,
			Symbol:       p.Symbol,
			OpeningPrice: p.OpeningPrice.String(),
			Batch:        p.Batch,
			AdmittedAt:   at,
		}))
	case events.OrderPlaced:
		limit := ""
		if !p.LimitPrice.IsZero() {
			limit = p.LimitPrice.String()
		}
		j.writer.Write(db.InsertOrder(db.Order{
			SessionID:  j.sessionID,
			OrderID:    p.OrderID,
			Class:      p.Class,
			Symbol:     p.Symbol,
			Action:     p.Action,
			OrderType:  p.OrderType,
			Quantity:   p.Quantity.String(),
			LimitPrice: limit,
			PlacedAt:   at,
		}))
	case events.OrderStatus:
		j.writer.Write(db.InsertOrderStatus(db.OrderStatus{
			SessionID:  j.sessionID,
			OrderID:    p.OrderID,
			Class:      p.Class,
			Status:     p.Status,
			State:      p.State,
			Filled:     p.Filled.String(),
			Remaining:  p.Remaining.String(),
			ReportedAt: at,
		}))
	}

	payload, err := json.Marshal(env.Payload)
	if err != nil {
		j.log.Warn().Err(err).Str("topic", string(env.Event)).Msg("encode journal event")
		return
	}
	j.writer.Write(db.InsertEvent(j.sessionID, string(env.Event), string(payload), at))
}

// Flush commits queued statements now.
func (j *Journal) Flush() error { return j.writer.Flush() }

// Writer exposes batch statistics.
func (j *Journal) Writer() *Writer { return j.writer }

func (j *Journal) close() {
	if err := j.writer.Close(); err != nil {
		j.log.Warn().Err(err).Msg("close journal writer")
	}
	if err := j.db.EndSession(context.Background(), j.sessionID, time.Now().UTC()); err != nil {
		j.log.Warn().Err(err).Msg("mark session ended")
	}
}
