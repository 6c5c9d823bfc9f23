package world

import (
	"log/slog"
	"sync"
	"time"
)

// DeferredQueue schedules closures to run on the tick thread after a delay.
// Producers may schedule from any thread; Drain must only be called from
// the tick thread so closures observe single-threaded tick state.
type DeferredQueue struct {
	mu      sync.Mutex
	pending []deferredEvent
	nextID  uint64
}

type deferredEvent struct {
	id    uint64
	runAt time.Time
	fn    func()
}

// NewDeferredQueue creates an empty deferred event queue.
func NewDeferredQueue() *DeferredQueue {
	return &DeferredQueue{}
}

// Schedule queues fn to run no earlier than delay from now.
// Returns an id that can be passed to Cancel.
func (q *DeferredQueue) Schedule(delay time.Duration, fn func()) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	q.pending = append(q.pending, deferredEvent{
		id:    q.nextID,
		runAt: time.Now().Add(delay),
		fn:    fn,
	})
	return q.nextID
}

// Cancel removes a scheduled event. Idempotent.
func (q *DeferredQueue) Cancel(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, ev := range q.pending {
		if ev.id == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Drain runs every closure whose deadline has passed.
// Closures run outside the queue lock so they may schedule further events.
func (q *DeferredQueue) Drain(now time.Time) int {
	q.mu.Lock()
	var due []deferredEvent
	remaining := q.pending[:0]
	for _, ev := range q.pending {
		if !ev.runAt.After(now) {
			due = append(due, ev)
		} else {
			remaining = append(remaining, ev)
		}
	}
	q.pending = remaining
	q.mu.Unlock()

	for _, ev := range due {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("deferred event panicked", "id", ev.id, "panic", r)
				}
			}()
			ev.fn()
		}()
	}
	return len(due)
}

// Len returns the number of pending events.
func (q *DeferredQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
