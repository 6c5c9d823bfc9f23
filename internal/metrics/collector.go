// Package metrics implements per-bot counters sharded 256 ways so that
// thousands of concurrent writers only contend with same-shard writers.
package metrics

import (
	"sync"
)

// Metric identifies one per-bot counter.
type Metric uint8

const (
	MetricUpdates Metric = iota
	MetricUpdateMicros
	MetricErrors
	MetricEventsHandled
	MetricEventsPublished
	MetricMovesIssued
	MetricMovesDeduped
	MetricLoginRetries
	MetricPromotionDeficit
	MetricDeferredFired

	metricCount
)

// String returns the stable name used by the stats dump.
func (m Metric) String() string {
	switch m {
	case MetricUpdates:
		return "updates"
	case MetricUpdateMicros:
		return "update_micros"
	case MetricErrors:
		return "errors"
	case MetricEventsHandled:
		return "events_handled"
	case MetricEventsPublished:
		return "events_published"
	case MetricMovesIssued:
		return "moves_issued"
	case MetricMovesDeduped:
		return "moves_deduped"
	case MetricLoginRetries:
		return "login_retries"
	case MetricPromotionDeficit:
		return "promotion_deficit"
	case MetricDeferredFired:
		return "deferred_fired"
	default:
		return "unknown"
	}
}

// Metrics returns every defined metric, in dump order.
func Metrics() []Metric {
	out := make([]Metric, metricCount)
	for i := range out {
		out[i] = Metric(i)
	}
	return out
}

const shardCount = 256

// Counters is one bot's counter vector.
type Counters [metricCount]uint64

type shard struct {
	mu   sync.RWMutex
	bots map[uint64]*Counters
}

// Collector holds per-bot counters under 256-way sharded locking.
// A bot's counters live on a single shard (hash of its EID) for the
// bot's entire lifetime.
type Collector struct {
	shards [shardCount]shard
}

var (
	collectorInstance *Collector
	collectorOnce     sync.Once
)

// Default returns the singleton collector.
func Default() *Collector {
	collectorOnce.Do(func() {
		collectorInstance = NewCollector()
	})
	return collectorInstance
}

// NewCollector creates a collector (tests wire their own).
func NewCollector() *Collector {
	c := &Collector{}
	for i := range c.shards {
		c.shards[i].bots = make(map[uint64]*Counters, 64)
	}
	return c
}

// shardFor selects the shard by FNV-1a of the EID bytes, masked to 256.
func (c *Collector) shardFor(eid uint64) *shard {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < 8; i++ {
		h ^= (eid >> (i * 8)) & 0xFF
		h *= prime64
	}
	return &c.shards[h&(shardCount-1)]
}

// Add increments a counter by delta. O(1) plus the shard lock.
func (c *Collector) Add(eid uint64, m Metric, delta uint64) {
	s := c.shardFor(eid)
	s.mu.Lock()
	counters, ok := s.bots[eid]
	if !ok {
		counters = &Counters{}
		s.bots[eid] = counters
	}
	counters[m] += delta
	s.mu.Unlock()
}

// Record increments a counter by one.
func (c *Collector) Record(eid uint64, m Metric) {
	c.Add(eid, m, 1)
}

// GetBot returns a copy of one bot's counter vector.
// The zero vector is returned for unknown bots.
func (c *Collector) GetBot(eid uint64) Counters {
	s := c.shardFor(eid)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if counters, ok := s.bots[eid]; ok {
		return *counters
	}
	return Counters{}
}

// Forget drops a bot's counters on session retirement.
func (c *Collector) Forget(eid uint64) {
	s := c.shardFor(eid)
	s.mu.Lock()
	delete(s.bots, eid)
	s.mu.Unlock()
}

// GlobalSnapshot is the reduced view over all shards.
type GlobalSnapshot struct {
	Bots   int
	Totals Counters
}

// Global sums every bot's counters, one shard at a time under a shared
// lock. Eventually consistent: writes racing the snapshot may or may not
// be included.
func (c *Collector) Global() GlobalSnapshot {
	var snap GlobalSnapshot
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		snap.Bots += len(s.bots)
		for _, counters := range s.bots {
			for m := range metricCount {
				snap.Totals[m] += counters[m]
			}
		}
		s.mu.RUnlock()
	}
	return snap
}
