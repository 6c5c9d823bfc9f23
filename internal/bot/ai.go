package bot

import (
	"log/slog"
	"time"

	"github.com/udisondev/la2bots/internal/diag"
	"github.com/udisondev/la2bots/internal/event"
	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/world"
)

// releaseSpiritDelay is how long a death-recovery teleport acknowledgement
// is deferred. The host's teleport ack path is fragile immediately after
// death recovery, so the ack goes through the deferred queue and
// re-validates the session when it fires.
const releaseSpiritDelay = 100 * time.Millisecond

// TeleportAcker is the host hook that completes a post-death teleport.
type TeleportAcker interface {
	AcknowledgeTeleport(eid world.EID)
}

// HostHooks bundles the host runtime entry points the AI drives.
type HostHooks struct {
	Motion   MotionIssuer
	Teleport TeleportAcker
}

// AIDeps is everything an AI front-end is wired to.
type AIDeps struct {
	Bus       *event.Bus
	Table     *world.Table
	Deferred  *world.DeferredQueue
	Collector *metrics.Collector
	Hooks     HostHooks
}

// AI is the per-bot front-end attached by the Factory. It owns the bot's
// behaviours' driving loop, tracks the combat situation for AutoAdjust,
// and reacts to bus events. Owned by its Session; tick-thread only except
// OnEvent, which the bus serializes under its own lock.
type AI struct {
	session *Session
	deps    AIDeps
	mover   *Mover

	// default trigger/value set, installed by the factory
	values map[string]float64

	target Ref

	inCombat      bool
	hostile       bool
	lastDamagedAt time.Time
	dead          bool
}

func newAI(deps AIDeps, s *Session) *AI {
	return &AI{
		session: s,
		deps:    deps,
		mover:   NewMover(s.EID(), deps.Hooks.Motion, deps.Collector),
		values:  make(map[string]float64, 8),
	}
}

// Mover returns the bot's deduplicating movement issuer.
func (a *AI) Mover() *Mover { return a.mover }

// Session returns the owning session.
func (a *AI) Session() *Session { return a.session }

// SetValue stores a named tuning value. Keys are interned: the same small
// trigger vocabulary repeats across thousands of bots.
func (a *AI) SetValue(key string, v float64) {
	a.values[diag.InternTagged(key, "trigger")] = v
}

// Value returns a named tuning value, or fallback when unset.
func (a *AI) Value(key string, fallback float64) float64 {
	if v, ok := a.values[key]; ok {
		return v
	}
	return fallback
}

// SetTarget points the AI at another entity by id.
func (a *AI) SetTarget(eid world.EID) {
	a.target = NewRef(a.deps.Table, eid)
}

// Target resolves the current target, nil if it is gone.
func (a *AI) Target() world.Entity {
	return a.target.Resolve()
}

// Update runs every enabled, non-busy behaviour whose interval elapsed.
// Called by the Manager under the session's busy flag.
func (a *AI) Update(diff time.Duration) {
	for _, b := range a.session.Behaviors() {
		base, ok := b.(interface {
			ShouldRun(time.Duration) bool
			Guard(func())
		})
		if ok {
			if base.ShouldRun(diff) {
				base.Guard(func() { b.Update(diff) })
			}
			continue
		}
		if b.IsEnabled() && !b.IsBusy() {
			b.Update(diff)
		}
	}
}

// Status assembles the situation snapshot AutoAdjust classifies on.
func (a *AI) Status() Status {
	nearHuman := a.anyHumanNearby()
	return Status{
		InCombat:          a.inCombat,
		Hostile:           a.hostile,
		LastDamagedAt:     a.lastDamagedAt,
		PartyWithHuman:    nearHuman,
		HiddenFromPlayers: !nearHuman,
		IdleSince:         a.session.idleSince,
	}
}

// anyHumanNearby scans the object table for a player within aggro range.
// The table walk is cheap relative to its frequency: Status is only
// assembled on the bot's own eligible ticks.
func (a *AI) anyHumanNearby() bool {
	if a.deps.Table == nil || a.session.character == nil {
		return false
	}
	rangeSq := a.Value("human_notice_range", 600)
	rangeSq *= rangeSq
	origin := a.session.character.Location
	found := false
	a.deps.Table.Range(func(e world.Entity) bool {
		if !e.EID().IsBot() && e.Location().DistanceSquared(origin) <= rangeSq {
			found = true
			return false
		}
		return true
	})
	return found
}

// OnEvent reacts to bus events targeted at or observed by this bot.
func (a *AI) OnEvent(ev event.Event) {
	if a.deps.Collector != nil {
		a.deps.Collector.Record(uint64(a.session.EID()), metrics.MetricEventsHandled)
	}

	switch ev.Type {
	case event.TypeCombatStarted:
		if ev.Subject == a.session.EID() {
			a.inCombat = true
			a.session.idleSince = time.Now()
		}
	case event.TypeCombatEnded:
		if ev.Subject == a.session.EID() {
			a.inCombat = false
			a.hostile = false
			a.session.idleSince = time.Now()
		}
	case event.TypeDamageTaken:
		if ev.Subject == a.session.EID() {
			a.hostile = true
			a.lastDamagedAt = ev.Time
		}
	case event.TypeBotDied:
		if ev.Subject == a.session.EID() {
			a.onDeath()
		}
	case event.TypeBotRevived:
		if ev.Subject == a.session.EID() {
			a.dead = false
		}
	}
}

// onDeath schedules death recovery: release spirit now, acknowledge the
// teleport after a fixed delay. The deferred closure holds a generation
// reference, never the raw session, so a retirement between death and the
// deferred fire is observed and the ack is dropped.
func (a *AI) onDeath() {
	a.dead = true
	a.inCombat = false
	a.mover.Cancel()

	if a.deps.Deferred == nil || a.deps.Hooks.Teleport == nil {
		return
	}

	ref := NewSessionRef(a.session)
	eid := a.session.EID()
	a.deps.Deferred.Schedule(releaseSpiritDelay, func() {
		s := ref.Resolve()
		if s == nil || s.State() != StateInWorld {
			if IsDebugEnabled() {
				slog.Debug("dropping teleport ack for retired session", "eid", uint64(eid))
			}
			return
		}
		if a.deps.Collector != nil {
			a.deps.Collector.Record(uint64(eid), metrics.MetricDeferredFired)
		}
		a.deps.Hooks.Teleport.AcknowledgeTeleport(eid)
	})
}

// IsDead reports whether the bot is between death and revive.
func (a *AI) IsDead() bool { return a.dead }

// Close detaches the AI from the bus. Called from session teardown before
// the session returns to the pool.
func (a *AI) Close() {
	if a.deps.Bus != nil {
		a.deps.Bus.Detach(a)
	}
}
