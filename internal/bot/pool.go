package bot

import (
	"errors"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("bot: session pool is closed")

// Pool allocates and recycles session objects to cut allocation churn
// when bots spawn and retire frequently. Operations are short and run
// under a single mutex.
type Pool struct {
	mu     sync.Mutex
	free   []*Session
	min    int
	max    int
	closed bool
}

// NewPool creates a pool pre-filled with min sessions; the free list may
// grow up to max and shrinks back to min during idle periods.
func NewPool(min, max int) *Pool {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	p := &Pool{min: min, max: max}
	for range min {
		p.free = append(p.free, newSession())
	}
	return p
}

// Acquire returns a session, reused when possible. The session is
// zero-initialised apart from its generation counter.
func (p *Pool) Acquire() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		// The reset on release closed the processor against late posts
		// from the previous occupant's workers.
		s.proc.Reopen()
		return s, nil
	}
	return newSession(), nil
}

// Release resets the session (bumping its generation) and returns it to
// the free list. Sessions beyond max are dropped for the GC.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	s.reset()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.free) >= p.max {
		return
	}
	p.free = append(p.free, s)
}

// Shrink trims the free list back to min. Called during idle periods.
func (p *Pool) Shrink() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.free) > p.min {
		n := len(p.free)
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
}

// StartJanitor shrinks the free list back to min every interval until
// stop is closed. Run alongside the watchdog so a spawn burst's sessions
// are returned to the GC once the burst is over.
func (p *Pool) StartJanitor(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Shrink()
			case <-stop:
				return
			}
		}
	}()
}

// AvailableCount reports the free-list size.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Close refuses further acquisitions. Outstanding sessions may still be
// released; they are dropped instead of pooled.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.free = nil
}
