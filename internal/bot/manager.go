package bot

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/la2bots/internal/diag"
	"github.com/udisondev/la2bots/internal/event"
	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/world"
)

// consecutiveFailureLimit is how many AI updates may fail in a row before
// the session is demoted to SUSPENDED pending inspection.
const consecutiveFailureLimit = 3

// ManagerConfig tunes the session manager.
type ManagerConfig struct {
	MaxPopulation  int
	StallThreshold time.Duration
}

// Manager owns the authoritative set of live bot sessions and drives
// their periodic update. Iteration order is deterministic across ticks as
// long as membership is unchanged; all concurrent mutations are applied
// at tick boundaries.
type Manager struct {
	cfg        ManagerConfig
	priorities *PriorityManager
	bus        *event.Bus
	collector  *metrics.Collector
	pool       *Pool
	table      *world.Table
	detector   *diag.DeadlockDetector

	mu       sync.RWMutex
	sessions map[world.EID]*Session
	order    []world.EID // insertion order, the stable iteration order

	pendingMu     sync.Mutex
	pendingRemove []world.EID

	tick atomic.Uint64
}

// NewManager wires a session manager.
func NewManager(cfg ManagerConfig, priorities *PriorityManager, bus *event.Bus,
	collector *metrics.Collector, pool *Pool, table *world.Table) *Manager {
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 10 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		priorities: priorities,
		bus:        bus,
		collector:  collector,
		pool:       pool,
		table:      table,
		detector:   diag.Detector(),
		sessions:   make(map[world.EID]*Session, 1024),
	}
}

// Add inserts a session into the active set and emits BotAdded.
// Fails if the EID is already present or max population is reached.
func (m *Manager) Add(s *Session) error {
	eid := s.EID()
	if eid == world.InvalidEID {
		return fmt.Errorf("adding session without a bound EID")
	}

	m.mu.Lock()
	if _, exists := m.sessions[eid]; exists {
		m.mu.Unlock()
		return fmt.Errorf("session %d already in active set", uint64(eid))
	}
	if m.cfg.MaxPopulation > 0 && len(m.sessions) >= m.cfg.MaxPopulation {
		m.mu.Unlock()
		return fmt.Errorf("active set full (%d sessions)", m.cfg.MaxPopulation)
	}
	m.sessions[eid] = s
	m.order = append(m.order, eid)
	m.mu.Unlock()

	m.priorities.Track(eid, TierMedium)

	// Publish outside the set lock: no component holds two locks at once.
	m.bus.Publish(event.TypeBotAdded, eid, s.Name())

	slog.Info("bot session added", "eid", uint64(eid), "bot", s.Name())
	return nil
}

// Remove retires a session. Safe to call from any thread: the actual
// retirement executes at the next tick boundary so no session is
// destroyed mid-iteration.
func (m *Manager) Remove(eid world.EID) {
	m.pendingMu.Lock()
	m.pendingRemove = append(m.pendingRemove, eid)
	m.pendingMu.Unlock()
}

// Get returns the session view for an EID. The view is only valid for
// the duration of the current tick; callers must not retain it.
func (m *Manager) Get(eid world.EID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[eid]
	return s, ok
}

// GetByName finds a session by character name. Admin CLI path, O(n).
func (m *Manager) GetByName(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Count returns the active set size.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Tick returns the current tick counter.
func (m *Manager) Tick() uint64 {
	return m.tick.Load()
}

// Update is called once per host tick. It applies pending retirements,
// then iterates active sessions in stable order, updating each one the
// priority manager deems eligible.
func (m *Manager) Update(diff time.Duration) {
	tick := m.tick.Add(1)
	m.applyRemovals()

	m.mu.RLock()
	order := make([]world.EID, len(m.order))
	copy(order, m.order)
	sessions := make(map[world.EID]*Session, len(m.sessions))
	for eid, s := range m.sessions {
		sessions[eid] = s
	}
	m.mu.RUnlock()

	now := time.Now()
	for _, eid := range order {
		s, ok := sessions[eid]
		if !ok {
			continue
		}
		if s.IsSuspended() || s.State() != StateInWorld {
			continue
		}
		if !m.priorities.ShouldUpdate(eid, tick) {
			continue
		}
		// Never tick a session that is still flagged busy.
		if !s.busy.CompareAndSwap(false, true) {
			continue
		}

		m.priorities.RecordUpdateStart(eid, now)
		start := time.Now()
		err := m.updateSession(s, diff)
		micros := uint64(time.Since(start).Microseconds())

		m.collector.Record(uint64(eid), metrics.MetricUpdates)
		m.collector.Add(uint64(eid), metrics.MetricUpdateMicros, micros)
		m.priorities.RecordUpdateEnd(eid, micros)

		if err != nil {
			m.collector.Record(uint64(eid), metrics.MetricErrors)
			s.lastErrorAt = time.Now()
			s.failStreak++
			if s.failStreak >= consecutiveFailureLimit {
				slog.Error("suspending bot after consecutive failures",
					"eid", uint64(eid), "bot", s.Name(), "failures", s.failStreak)
				m.priorities.SetTier(eid, TierSuspended)
				s.SetSuspended(true)
			}
		} else {
			s.failStreak = 0
			s.lastUpdateTick = tick
			if ai := s.ai; ai != nil {
				m.priorities.AutoAdjust(eid, ai.Status(), now)
			}
		}

		s.busy.Store(false)
	}
}

// updateSession pumps the session's database callbacks and runs the AI.
// A panicking behaviour is converted to an error; it never crosses the
// tick boundary.
func (m *Manager) updateSession(s *Session, diff time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("AI update panicked: %v", r)
			slog.Error("bot update panicked", "eid", uint64(s.EID()), "bot", s.Name(), "panic", r)
		}
	}()

	s.proc.PumpAll()
	if ai := s.ai; ai != nil {
		ai.Update(diff)
	}
	return nil
}

// CheckStalls surfaces sessions whose update started but never ended
// within the threshold. Runs on a watchdog goroutine, not the tick
// thread: a stalled update means the tick thread itself is wedged.
func (m *Manager) CheckStalls(now time.Time) int {
	stalled := m.priorities.DetectStalled(now, m.cfg.StallThreshold)
	for i, eid := range stalled {
		m.detector.DetectFutureDeadlock(uint64(eid), i, len(stalled), m.cfg.StallThreshold, diag.CallerStack())
		m.priorities.SetTier(eid, TierSuspended)
		if s, ok := m.Get(eid); ok {
			s.SetSuspended(true)
		}
	}
	return len(stalled)
}

// StartWatchdog runs CheckStalls every interval until stop is closed.
func (m *Manager) StartWatchdog(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				m.CheckStalls(now)
			}
		}
	}()
}

// applyRemovals executes queued retirements at the tick boundary.
func (m *Manager) applyRemovals() {
	m.pendingMu.Lock()
	pending := m.pendingRemove
	m.pendingRemove = nil
	m.pendingMu.Unlock()

	for _, eid := range pending {
		m.retire(eid)
	}
}

// retire removes the session from the active set, tears down its
// subscriptions, clears its counters and hands it back to the pool.
func (m *Manager) retire(eid world.EID) {
	m.mu.Lock()
	s, ok := m.sessions[eid]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, eid)
	for i, id := range m.order {
		if id == eid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	name := s.Name()

	// Subscriptions first, then the rest: a retired session must not
	// receive further events.
	s.teardown(m.bus)
	m.priorities.Forget(eid)
	m.collector.Forget(uint64(eid))
	if m.table != nil {
		m.table.Remove(eid)
	}

	m.bus.Publish(event.TypeBotRemoved, eid, name)
	m.pool.Release(s)

	slog.Info("bot session retired", "eid", uint64(eid), "bot", name)
}
