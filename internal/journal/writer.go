package journal

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dip-trader/pkg/db"
)

// WriterMetrics provides statistics about batch operations.
type WriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// Writer batches journal statements and commits each batch in one transaction,
// either when maxSize statements are queued or every interval.
type Writer struct {
	db       *db.Database
	log      zerolog.Logger
	maxSize  int
	interval time.Duration

	mu     sync.Mutex
	buffer []db.Statement
	last   WriterMetrics

	writes  atomic.Uint64
	batches atomic.Uint64
	errors  atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWriter creates a writer and starts its background flush.
func NewWriter(database *db.Database, maxSize int, interval time.Duration, log zerolog.Logger) *Writer {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	w := &Writer{
		db:       database,
		log:      log,
		maxSize:  maxSize,
		interval: interval,
		buffer:   make([]db.Statement, 0, maxSize),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.backgroundFlush()
	return w
}

// Write queues a statement.
func (w *Writer) Write(st db.Statement) {
	w.mu.Lock()
	w.buffer = append(w.buffer, st)
	shouldFlush := len(w.buffer) >= w.maxSize
	w.mu.Unlock()

	if shouldFlush {
		if err := w.Flush(); err != nil {
			w.log.Warn().Err(err).Msg("journal flush")
		}
	}
}

// Flush commits everything queued so far.
func (w *Writer) Flush() error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	ops := w.buffer
	w.buffer = make([]db.Statement, 0, w.maxSize)
	w.mu.Unlock()

	return w.executeBatch(ops)
}

func (w *Writer) executeBatch(ops []db.Statement) error {
	w.writes.Add(uint64(len(ops)))
	w.batches.Add(1)
	w.mu.Lock()
	w.last.LastBatchSize = len(ops)
	w.last.LastFlushTime = time.Now()
	w.mu.Unlock()

	err := w.db.InTx(context.Background(), func(tx *sql.Tx) error {
		for _, op := range ops {
			if _, err := tx.Exec(op.Query, op.Args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		w.errors.Add(1)
		w.log.Error().Err(err).Int("statements", len(ops)).Msg("journal batch rolled back")
		return err
	}
	w.log.Debug().Int("statements", len(ops)).Msg("journal batch committed")
	return nil
}

func (w *Writer) backgroundFlush() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.log.Warn().Err(err).Msg("journal background flush")
			}
		case <-w.done:
			if err := w.Flush(); err != nil {
				w.log.Warn().Err(err).Msg("journal final flush")
			}
			return
		}
	}
}

// Pending returns the number of queued statements.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Metrics returns the writer's counters.
func (w *Writer) Metrics() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriterMetrics{
		TotalWrites:   w.writes.Load(),
		TotalBatches:  w.batches.Load(),
		TotalErrors:   w.errors.Load(),
		LastBatchSize: w.last.LastBatchSize,
		LastFlushTime: w.last.LastFlushTime,
	}
}

// Close stops the background flush after a final flush.
func (w *Writer) Close() error {
	close(w.done)
	w.wg.Wait()
	return nil
}
