package bot

import (
	"sync/atomic"
	"time"
)

// Behavior is the uniform contract for every subsystem a session ticks:
// rotations, trading, movement, social responses. The manager
// infrastructure assumes nothing about the concrete behaviour.
type Behavior interface {
	// Update advances the behaviour by the host tick delta.
	Update(diff time.Duration)

	// Name identifies the behaviour in logs and metrics.
	Name() string

	IsEnabled() bool
	SetEnabled(enabled bool)

	// IsBusy reports the re-entrancy guard; a busy behaviour is skipped.
	IsBusy() bool

	UpdateInterval() time.Duration
	SetUpdateInterval(interval time.Duration)

	IsInitialized() bool
}

// BaseBehavior carries the uniform update-interval and enable/busy state.
// Concrete behaviours embed it and implement Update.
type BaseBehavior struct {
	name        string
	enabled     atomic.Bool
	busy        atomic.Bool
	initialized atomic.Bool
	interval    atomic.Int64 // nanoseconds
	sinceRun    atomic.Int64 // nanoseconds accumulated since last run
}

// NewBaseBehavior creates an enabled, initialized base with the given
// update interval. Interval 0 means "every eligible tick".
func NewBaseBehavior(name string, interval time.Duration) BaseBehavior {
	b := BaseBehavior{name: name}
	b.enabled.Store(true)
	b.initialized.Store(true)
	b.interval.Store(int64(interval))
	return b
}

func (b *BaseBehavior) Name() string        { return b.name }
func (b *BaseBehavior) IsEnabled() bool     { return b.enabled.Load() }
func (b *BaseBehavior) SetEnabled(e bool)   { b.enabled.Store(e) }
func (b *BaseBehavior) IsBusy() bool        { return b.busy.Load() }
func (b *BaseBehavior) IsInitialized() bool { return b.initialized.Load() }

func (b *BaseBehavior) UpdateInterval() time.Duration {
	return time.Duration(b.interval.Load())
}

func (b *BaseBehavior) SetUpdateInterval(interval time.Duration) {
	b.interval.Store(int64(interval))
}

// ShouldRun accumulates the tick delta and reports whether the interval
// has elapsed, resetting the accumulator when it has.
func (b *BaseBehavior) ShouldRun(diff time.Duration) bool {
	if !b.enabled.Load() || !b.initialized.Load() || b.busy.Load() {
		return false
	}
	interval := b.interval.Load()
	if interval <= 0 {
		return true
	}
	acc := b.sinceRun.Add(int64(diff))
	if acc < interval {
		return false
	}
	b.sinceRun.Store(0)
	return true
}

// Guard marks the behaviour busy for the duration of fn.
func (b *BaseBehavior) Guard(fn func()) {
	if !b.busy.CompareAndSwap(false, true) {
		return
	}
	defer b.busy.Store(false)
	fn()
}
