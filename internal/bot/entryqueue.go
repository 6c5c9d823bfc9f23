package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Entry is one pending world entry.
type Entry struct {
	Session *Session
	// Reconnect entries (respawn after a crash) jump the FIFO.
	Reconnect bool
	// Run completes the host's player-login sequence. Runs on the tick
	// thread when the queue admits the entry.
	Run func() error

	attempts   int
	notBefore  time.Time
	enqueuedAt time.Time
}

// EntryStats is the queue's counters snapshot.
type EntryStats struct {
	Queued      int
	Active      int
	Completed   uint64
	Failed      uint64
	AvgEntryDur time.Duration
}

// EntryQueue rate-limits concurrent bot world entries so spawn bursts do
// not saturate the host loader. FIFO with a priority lane for reconnect
// entries; failed entries are retried once with backoff.
type EntryQueue struct {
	sem     *semaphore.Weighted
	backoff time.Duration

	mu         sync.Mutex
	prio       []*Entry
	fifo       []*Entry
	active     int
	completed  uint64
	failed     uint64
	totalMicro uint64
}

// NewEntryQueue creates a queue admitting up to maxConcurrent entries at
// a time, with the given retry backoff.
func NewEntryQueue(maxConcurrent int64, backoff time.Duration) *EntryQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &EntryQueue{
		sem:     semaphore.NewWeighted(maxConcurrent),
		backoff: backoff,
	}
}

// Queue appends an entry. Non-blocking; never rejects.
func (q *EntryQueue) Queue(e *Entry) {
	e.enqueuedAt = time.Now()
	q.mu.Lock()
	if e.Reconnect {
		q.prio = append(q.prio, e)
	} else {
		q.fifo = append(q.fifo, e)
	}
	q.mu.Unlock()
}

// Process admits up to maxAdmit pending entries whose backoff has passed.
// Returns how many entries completed (successfully or not) this call.
func (q *EntryQueue) Process(maxAdmit int) int {
	now := time.Now()
	processed := 0
	for processed < maxAdmit {
		e := q.pop(now)
		if e == nil {
			break
		}
		if !q.sem.TryAcquire(1) {
			// Admission slots exhausted; requeue without an attempt.
			q.requeue(e)
			break
		}
		q.admit(e)
		q.sem.Release(1)
		processed++
	}
	return processed
}

func (q *EntryQueue) pop(now time.Time) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, lane := range []*[]*Entry{&q.prio, &q.fifo} {
		for i, e := range *lane {
			if e.notBefore.After(now) {
				continue
			}
			*lane = append((*lane)[:i], (*lane)[i+1:]...)
			q.active++
			return e
		}
	}
	return nil
}

func (q *EntryQueue) requeue(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	if e.Reconnect {
		q.prio = append([]*Entry{e}, q.prio...)
	} else {
		q.fifo = append([]*Entry{e}, q.fifo...)
	}
}

func (q *EntryQueue) admit(e *Entry) {
	start := time.Now()
	err := e.Run()
	elapsed := time.Since(start)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--

	if err == nil {
		q.completed++
		q.totalMicro += uint64(elapsed.Microseconds())
		return
	}

	e.attempts++
	if e.attempts < 2 {
		e.notBefore = time.Now().Add(q.backoff)
		slog.Warn("world entry failed, retrying", "bot", e.Session.Name(), "err", err)
		if e.Reconnect {
			q.prio = append(q.prio, e)
		} else {
			q.fifo = append(q.fifo, e)
		}
		return
	}

	q.failed++
	slog.Error("world entry failed permanently", "bot", e.Session.Name(), "err", err)
	e.Session.setState(StateFailed)
}

// Stats returns the counters snapshot.
func (q *EntryQueue) Stats() EntryStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := EntryStats{
		Queued:    len(q.prio) + len(q.fifo),
		Active:    q.active,
		Completed: q.completed,
		Failed:    q.failed,
	}
	if q.completed > 0 {
		st.AvgEntryDur = time.Duration(q.totalMicro/q.completed) * time.Microsecond
	}
	return st
}

// Acquire blocks until an admission slot is free or ctx is done.
// Used by host-driven entries that bypass Process.
func (q *EntryQueue) Acquire(ctx context.Context) error {
	return q.sem.Acquire(ctx, 1)
}

// ReleaseSlot returns a slot taken via Acquire.
func (q *EntryQueue) ReleaseSlot() {
	q.sem.Release(1)
}
