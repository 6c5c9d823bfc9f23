package world

import (
	"sync"
	"sync/atomic"

	"github.com/udisondev/la2bots/internal/model"
)

// Entity is the minimal view of an in-world object the bot core needs.
// The host's Player/Unit/Group types all satisfy it.
type Entity interface {
	EID() EID
	Name() string
	Location() model.Location
}

// Table is the authoritative EID → entity lookup for the bot core.
// Use Objects() for the shared instance.
type Table struct {
	objects sync.Map // map[EID]Entity
	count   atomic.Int64
}

var (
	tableInstance *Table
	tableOnce     sync.Once
)

// Objects returns the singleton entity table.
func Objects() *Table {
	tableOnce.Do(func() {
		tableInstance = &Table{}
	})
	return tableInstance
}

// NewTable creates a standalone table (tests wire their own).
func NewTable() *Table {
	return &Table{}
}

// Add registers an entity. Re-adding the same EID overwrites the entry.
func (t *Table) Add(e Entity) {
	if _, loaded := t.objects.Swap(e.EID(), e); !loaded {
		t.count.Add(1)
	}
}

// Remove unregisters an entity. Safe to call for an absent EID.
func (t *Table) Remove(eid EID) {
	if _, loaded := t.objects.LoadAndDelete(eid); loaded {
		t.count.Add(-1)
	}
}

// Get returns the entity for an EID, or nil, false if the entity is gone.
func (t *Table) Get(eid EID) (Entity, bool) {
	value, ok := t.objects.Load(eid)
	if !ok {
		return nil, false
	}
	return value.(Entity), true
}

// Count returns the number of registered entities (O(1) cached count).
func (t *Table) Count() int {
	return int(t.count.Load())
}

// Range calls fn for every registered entity until fn returns false.
func (t *Table) Range(fn func(Entity) bool) {
	t.objects.Range(func(_, value any) bool {
		return fn(value.(Entity))
	})
}
