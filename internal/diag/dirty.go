package diag

import "time"

// Dirty is a lazy-recompute wrapper for an infrequently changing per-bot
// value. Not thread-safe: a bot's values are only touched from the tick
// thread.
type Dirty[T any] struct {
	value   T
	dirty   bool
	compute func() T
}

// NewDirty creates a Dirty value that starts dirty, so the first Get
// invokes compute.
func NewDirty[T any](compute func() T) *Dirty[T] {
	return &Dirty[T]{dirty: true, compute: compute}
}

// Get recomputes if dirty and returns the cached value.
func (d *Dirty[T]) Get() T {
	if d.dirty {
		d.value = d.compute()
		d.dirty = false
	}
	return d.value
}

// Invalidate marks the value dirty; the next Get recomputes.
func (d *Dirty[T]) Invalidate() {
	d.dirty = true
}

// Set stores v directly and clears the dirty flag.
func (d *Dirty[T]) Set(v T) {
	d.value = v
	d.dirty = false
}

// TimedDirty is a Dirty value that additionally invalidates when the
// cached value is older than its TTL.
type TimedDirty[T any] struct {
	Dirty[T]
	ttl        time.Duration
	computedAt time.Time
}

// NewTimedDirty creates a TimedDirty value with the given TTL.
func NewTimedDirty[T any](ttl time.Duration, compute func() T) *TimedDirty[T] {
	t := &TimedDirty[T]{ttl: ttl}
	t.dirty = true
	t.compute = compute
	return t
}

// Get recomputes if dirty or expired and returns the cached value.
func (t *TimedDirty[T]) Get() T {
	if !t.dirty && time.Since(t.computedAt) > t.ttl {
		t.dirty = true
	}
	if t.dirty {
		t.computedAt = time.Now()
	}
	return t.Dirty.Get()
}

// Set stores v directly, clears the dirty flag and resets the TTL clock.
func (t *TimedDirty[T]) Set(v T) {
	t.computedAt = time.Now()
	t.Dirty.Set(v)
}
