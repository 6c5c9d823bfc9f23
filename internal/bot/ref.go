package bot

import "github.com/udisondev/la2bots/internal/world"

// Ref lets one bot refer to another entity (group leader, target) without
// holding a raw pointer across ticks. Resolve queries the host object
// table on every use; callers must never cache the result across a
// suspension or tick boundary.
type Ref struct {
	table *world.Table
	eid   world.EID
}

// NewRef creates a reference to an entity id.
func NewRef(table *world.Table, eid world.EID) Ref {
	return Ref{table: table, eid: eid}
}

// EID returns the referenced id.
func (r Ref) EID() world.EID { return r.eid }

// Resolve returns the live entity, or nil if it is gone.
func (r Ref) Resolve() world.Entity {
	if r.table == nil || r.eid == world.InvalidEID {
		return nil
	}
	e, ok := r.table.Get(r.eid)
	if !ok {
		return nil
	}
	return e
}

// SessionRef validates a session pointer against the generation captured
// at creation time. A recycled session fails validation instead of
// resolving to the new occupant.
type SessionRef struct {
	session    *Session
	generation uint64
}

// NewSessionRef captures the session's current generation.
func NewSessionRef(s *Session) SessionRef {
	return SessionRef{session: s, generation: s.Generation()}
}

// Resolve returns the session if it has not been recycled, nil otherwise.
func (r SessionRef) Resolve() *Session {
	if r.session == nil || r.session.Generation() != r.generation {
		return nil
	}
	return r.session
}
