package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessor_PumpFamiliesSeparately(t *testing.T) {
	p := NewProcessor()

	var ran []string
	p.postQuery(func() { ran = append(ran, "query") })
	p.postTx(func() { ran = append(ran, "tx") })
	p.postHolder(func() { ran = append(ran, "holder") })

	assert.Equal(t, 3, p.Pending())

	// Single-query pumping alone never touches holder callbacks.
	assert.Equal(t, 1, p.PumpQueries())
	assert.Equal(t, []string{"query"}, ran)
	assert.Equal(t, 2, p.Pending())

	assert.Equal(t, 1, p.PumpTransactions())
	assert.Equal(t, 1, p.PumpHolders())
	assert.Equal(t, []string{"query", "tx", "holder"}, ran)
	assert.Equal(t, 0, p.Pending())
}

func TestProcessor_PumpAllDrainsEverything(t *testing.T) {
	p := NewProcessor()

	ran := 0
	for range 3 {
		p.postQuery(func() { ran++ })
		p.postTx(func() { ran++ })
		p.postHolder(func() { ran++ })
	}

	assert.Equal(t, 9, p.PumpAll())
	assert.Equal(t, 9, ran)
	assert.Equal(t, 0, p.PumpAll(), "second pump finds nothing")
}

func TestProcessor_CallbacksMayPostMore(t *testing.T) {
	p := NewProcessor()

	second := false
	p.postQuery(func() {
		p.postQuery(func() { second = true })
	})

	p.PumpAll()
	assert.False(t, second, "re-posted callback waits for the next pump")
	p.PumpAll()
	assert.True(t, second)
}

func TestProcessor_Discard(t *testing.T) {
	p := NewProcessor()

	ran := false
	p.postQuery(func() { ran = true })
	p.postHolder(func() { ran = true })

	assert.Equal(t, 2, p.Discard())
	assert.Equal(t, 0, p.PumpAll())
	assert.False(t, ran, "discarded callbacks never run")
}

func TestProcessor_DiscardRefusesLatePosts(t *testing.T) {
	p := NewProcessor()
	p.Discard()

	// A worker still running at retirement posts its completion late;
	// the callback must never reach the session's next occupant.
	ran := false
	p.postQuery(func() { ran = true })
	p.postTx(func() { ran = true })
	p.postHolder(func() { ran = true })

	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, 0, p.PumpAll())
	assert.False(t, ran)

	p.Reopen()
	p.postTx(func() { ran = true })
	assert.Equal(t, 1, p.PumpAll())
	assert.True(t, ran, "a reopened processor serves its new occupant")
}
