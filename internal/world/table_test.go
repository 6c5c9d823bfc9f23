package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udisondev/la2bots/internal/model"
)

type stubEntity struct {
	eid  EID
	name string
	loc  model.Location
}

func (e *stubEntity) EID() EID                 { return e.eid }
func (e *stubEntity) Name() string             { return e.name }
func (e *stubEntity) Location() model.Location { return e.loc }

func TestTable_AddGetRemove(t *testing.T) {
	table := NewTable()
	e := &stubEntity{eid: EID(7), name: "Adena"}

	table.Add(e)
	assert.Equal(t, 1, table.Count())

	got, ok := table.Get(EID(7))
	require.True(t, ok)
	assert.Equal(t, "Adena", got.Name())

	table.Remove(EID(7))
	assert.Equal(t, 0, table.Count())
	_, ok = table.Get(EID(7))
	assert.False(t, ok)

	// Removing an absent EID is a no-op.
	table.Remove(EID(7))
	assert.Equal(t, 0, table.Count())
}

func TestTable_ReAddSameEIDKeepsCount(t *testing.T) {
	table := NewTable()
	table.Add(&stubEntity{eid: EID(1), name: "old"})
	table.Add(&stubEntity{eid: EID(1), name: "new"})

	assert.Equal(t, 1, table.Count())
	got, _ := table.Get(EID(1))
	assert.Equal(t, "new", got.Name())
}

func TestTable_RangeStopsEarly(t *testing.T) {
	table := NewTable()
	for i := 1; i <= 10; i++ {
		table.Add(&stubEntity{eid: EID(i)})
	}

	seen := 0
	table.Range(func(Entity) bool {
		seen++
		return seen < 3
	})
	assert.Equal(t, 3, seen)
}

func TestTable_ConcurrentAddRemove(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := range 100 {
				eid := EID(base*1000 + i)
				table.Add(&stubEntity{eid: eid})
				table.Remove(eid)
			}
		}(w + 1)
	}
	wg.Wait()
	assert.Equal(t, 0, table.Count())
}
