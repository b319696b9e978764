package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timekeep/internal/session"
)

// maxFlushInterval is a hard ceiling: a slower flush would let the
// persisted end_time fall more than one window behind reality.
const maxFlushInterval = time.Second

// writeOp is one pending mutation, applied inside the batch transaction.
type writeOp struct {
	desc  string
	apply func(tx *sql.Tx) error
}

// writeQueue batches mutations and applies each batch in a single
// transaction. A failed batch is rolled back and retried once; a second
// failure drops the batch and logs it, leaving the database consistent.
type writeQueue struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	pending []writeOp

	stop chan struct{}
	done chan struct{}
}

func newWriteQueue(db *sql.DB, interval time.Duration, logger *slog.Logger) (*writeQueue, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if interval > maxFlushInterval {
		return nil, &session.WayTooLongWaitError{Interval: interval, Max: maxFlushInterval}
	}
	q := &writeQueue{
		db:     db,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.loop(interval)
	return q, nil
}

func (q *writeQueue) Enqueue(desc string, apply func(tx *sql.Tx) error) {
	q.mu.Lock()
	q.pending = append(q.pending, writeOp{desc: desc, apply: apply})
	q.mu.Unlock()
}

// Flush applies all pending ops now. Ops stay ordered as enqueued.
func (q *writeQueue) Flush() error {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	err := q.applyBatch(batch)
	if err == nil {
		return nil
	}
	q.logger.Warn("batch flush failed, retrying", slog.Any("error", err))
	if retryErr := q.applyBatch(batch); retryErr != nil {
		q.logger.Error("batch flush failed twice, dropping batch",
			slog.Int("ops", len(batch)), slog.Any("error", retryErr))
		return retryErr
	}
	return nil
}

func (q *writeQueue) applyBatch(batch []writeOp) error {
	tx, err := q.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for _, op := range batch {
		if err := op.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s: %w", op.desc, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Close performs a final flush and stops the loop.
func (q *writeQueue) Close() error {
	close(q.stop)
	<-q.done
	return q.Flush()
}

func (q *writeQueue) loop(interval time.Duration) {
	defer close(q.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			if err := q.Flush(); err != nil {
				q.logger.Error("periodic flush failed", slog.Any("error", err))
			}
		}
	}
}
