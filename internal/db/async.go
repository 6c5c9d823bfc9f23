package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/semaphore"
)

// ErrShuttingDown is returned for async work submitted after Shutdown.
var ErrShuttingDown = errors.New("db: executor is shutting down")

// AsyncExecutor runs database work on worker goroutines and posts the
// completion callbacks into a per-session Processor. AI logic itself never
// blocks on the pool: it submits, keeps ticking, and picks the result up
// from its processor pump.
type AsyncExecutor struct {
	db      *DB
	timeout time.Duration
	sem     *semaphore.Weighted

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewAsyncExecutor wraps a DB with the given per-operation timeout.
// At most maxInFlight operations touch the database concurrently; excess
// submissions queue on the semaphore so a persistence burst from thousands
// of bots cannot starve the connection pool.
func NewAsyncExecutor(db *DB, timeout time.Duration, maxInFlight int64) *AsyncExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	return &AsyncExecutor{db: db, timeout: timeout, sem: semaphore.NewWeighted(maxInFlight)}
}

// QuerySync runs fn directly on the caller. For startup paths only; the
// tick thread uses the async variants.
func (e *AsyncExecutor) QuerySync(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return fn(ctx)
}

// QueryAsync runs fn on a worker goroutine; cb is posted to proc's
// single-query queue when fn returns.
func (e *AsyncExecutor) QueryAsync(proc *Processor, fn func(ctx context.Context) (any, error), cb func(result any, err error)) error {
	return e.submit(func(ctx context.Context) {
		result, err := fn(ctx)
		proc.postQuery(func() { cb(result, err) })
	})
}

// TxAsync runs fn inside a transaction on a worker goroutine; cb is posted
// to proc's transaction queue with the commit (or rollback) outcome.
func (e *AsyncExecutor) TxAsync(proc *Processor, fn func(ctx context.Context, tx pgx.Tx) error, cb func(err error)) error {
	return e.submit(func(ctx context.Context) {
		err := e.runTx(ctx, fn)
		proc.postTx(func() { cb(err) })
	})
}

func (e *AsyncExecutor) runTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := e.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "err", err)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Holder is a bundle of prepared statements treated as one asynchronous
// operation. Execute runs on a worker goroutine; the completion callback
// is posted to the holder queue of the submitting session's processor.
type Holder interface {
	// Execute runs every member statement. Either all complete, or the
	// holder completes with the returned error.
	Execute(ctx context.Context, db *DB) error
}

// SubmitHolder executes h on a worker goroutine and posts cb to proc's
// holder queue when the whole statement set has completed or failed.
func (e *AsyncExecutor) SubmitHolder(proc *Processor, h Holder, cb func(err error)) error {
	return e.submit(func(ctx context.Context) {
		err := h.Execute(ctx, e.db)
		proc.postHolder(func() { cb(err) })
	})
}

func (e *AsyncExecutor) submit(work func(ctx context.Context)) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return ErrShuttingDown
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.inflight.Done()
		// The operation timeout starts only once a slot is held, so queued
		// work does not expire while waiting its turn.
		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		work(ctx)
	}()
	return nil
}

// Shutdown refuses new submissions and waits for outstanding work up to
// the given timeout. Work still running after the timeout is abandoned;
// its callbacks stay undispatched in their processors.
func (e *AsyncExecutor) Shutdown(timeout time.Duration) bool {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		slog.Warn("abandoning outstanding database work", "timeout", timeout)
		return false
	}
}
