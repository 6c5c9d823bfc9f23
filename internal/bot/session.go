package bot

import (
	"sync/atomic"
	"time"

	"github.com/udisondev/la2bots/internal/db"
	"github.com/udisondev/la2bots/internal/event"
	"github.com/udisondev/la2bots/internal/model"
	"github.com/udisondev/la2bots/internal/world"
)

// LoginState is a session's position in the asynchronous login pipeline.
type LoginState int32

const (
	StateCreated LoginState = iota
	StateStatementsPosted
	StateHolderReady
	StateWorldEntryQueued
	StateInWorld
	StateFailed
)

// String returns the state name for logs.
func (s LoginState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateStatementsPosted:
		return "STATEMENTS_POSTED"
	case StateHolderReady:
		return "HOLDER_READY"
	case StateWorldEntryQueued:
		return "WORLD_ENTRY_QUEUED"
	case StateInWorld:
		return "IN_WORLD"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Session represents a single synthetic player. Sessions are allocated
// from the Pool, bound to an account and EID, driven by the Manager, and
// returned to the Pool on retirement.
//
// All fields except the atomics are owned by the tick thread once the
// session is in world.
type Session struct {
	generation atomic.Uint64 // bumped on every release back to the pool
	state      atomic.Int32  // LoginState
	busy       atomic.Bool
	suspended  atomic.Bool

	eid       world.EID
	account   *model.BotAccount
	character *model.Character

	ai        *AI
	behaviors []Behavior
	subs      []*event.Subscription

	proc *db.Processor

	lastUpdateTick uint64
	lastErrorAt    time.Time
	failStreak     int
	idleSince      time.Time
}

func newSession() *Session {
	return &Session{proc: db.NewProcessor()}
}

// Generation returns the pool generation counter. A reference captured
// under an earlier generation must resolve to "not found".
func (s *Session) Generation() uint64 { return s.generation.Load() }

// EID returns the bound entity id, or world.InvalidEID before binding.
func (s *Session) EID() world.EID { return s.eid }

// Name returns the bound character name, or the empty string.
func (s *Session) Name() string {
	if s.character == nil {
		return ""
	}
	return s.character.Name
}

// Location returns the character's current position.
func (s *Session) Location() model.Location {
	if s.character == nil {
		return model.Location{}
	}
	return s.character.Location
}

// Account returns the bound account.
func (s *Session) Account() *model.BotAccount { return s.account }

// Character returns the materialised character record.
func (s *Session) Character() *model.Character { return s.character }

// Processor returns the session's database callback processor.
func (s *Session) Processor() *db.Processor { return s.proc }

// AI returns the attached AI front-end, nil before the factory ran.
func (s *Session) AI() *AI { return s.ai }

// State returns the login pipeline state.
func (s *Session) State() LoginState {
	return LoginState(s.state.Load())
}

func (s *Session) setState(st LoginState) {
	s.state.Store(int32(st))
}

// IsSuspended reports the suspension flag. Suspended sessions keep their
// slot in the active set but are never ticked.
func (s *Session) IsSuspended() bool { return s.suspended.Load() }

// SetSuspended flips the suspension flag.
func (s *Session) SetSuspended(v bool) { s.suspended.Store(v) }

// Behaviors returns the behaviour set (tick thread only).
func (s *Session) Behaviors() []Behavior { return s.behaviors }

// AddBehavior appends a behaviour (tick thread only).
func (s *Session) AddBehavior(b Behavior) { s.behaviors = append(s.behaviors, b) }

// TrackSubscription records an event-bus handle for teardown on retirement.
func (s *Session) TrackSubscription(sub *event.Subscription) {
	s.subs = append(s.subs, sub)
}

// Bind attaches the account and materialised character under a fresh EID.
// Normally called by the login pipeline once the character holder lands.
func (s *Session) Bind(account *model.BotAccount, ch *model.Character, eid world.EID) {
	s.account = account
	s.character = ch
	s.eid = eid
	s.idleSince = time.Now()
}

// teardown closes subscriptions, detaches the AI and discards in-flight
// callbacks. Runs at the tick boundary, before the pool reclaims the
// session.
func (s *Session) teardown(bus *event.Bus) {
	// Unsubscribe first: a retired session must not receive events.
	for _, sub := range s.subs {
		sub.Close()
	}
	s.subs = nil

	if s.ai != nil {
		s.ai.Close()
		s.ai = nil
	}
	if bus != nil {
		bus.Detach(s)
	}

	s.behaviors = nil
	s.proc.Discard()
}

// reset zeroes the session for pool reuse and bumps the generation so
// stale references fail validation.
func (s *Session) reset() {
	s.generation.Add(1)
	s.state.Store(int32(StateCreated))
	s.busy.Store(false)
	s.suspended.Store(false)
	s.eid = world.InvalidEID
	s.account = nil
	s.character = nil
	s.ai = nil
	s.behaviors = nil
	s.subs = nil
	s.lastUpdateTick = 0
	s.lastErrorAt = time.Time{}
	s.failStreak = 0
	s.idleSince = time.Time{}
	s.proc.Discard()
}

// OnEvent lets a session act as an object subscriber; it forwards to the
// AI if one is attached.
func (s *Session) OnEvent(ev event.Event) {
	if ai := s.ai; ai != nil {
		ai.OnEvent(ev)
	}
}
