package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udisondev/la2bots/internal/db"
	"github.com/udisondev/la2bots/internal/model"
	"github.com/udisondev/la2bots/internal/world"
)

func TestPool_PrefillAndReuse(t *testing.T) {
	p := NewPool(2, 4)
	assert.Equal(t, 2, p.AvailableCount())

	s1, err := p.Acquire()
	require.NoError(t, err)
	s2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, p.AvailableCount())

	// Free list empty: a fresh session is allocated instead of blocking.
	s3, err := p.Acquire()
	require.NoError(t, err)
	require.NotNil(t, s3)

	p.Release(s1)
	p.Release(s2)
	p.Release(s3)
	assert.Equal(t, 3, p.AvailableCount())
}

func TestPool_ReleaseBeyondMaxDrops(t *testing.T) {
	p := NewPool(0, 1)
	s1, _ := p.Acquire()
	s2, _ := p.Acquire()

	p.Release(s1)
	p.Release(s2)
	assert.Equal(t, 1, p.AvailableCount())
}

func TestPool_ReleaseBumpsGeneration(t *testing.T) {
	p := NewPool(1, 4)
	s, err := p.Acquire()
	require.NoError(t, err)

	gen := s.Generation()
	p.Release(s)

	reused, err := p.Acquire()
	require.NoError(t, err)
	require.Same(t, s, reused)
	assert.Equal(t, gen+1, reused.Generation())
}

func TestPool_ReleaseClearsSessionState(t *testing.T) {
	p := NewPool(1, 4)
	s, _ := p.Acquire()
	s.Bind(&model.BotAccount{Login: "bot01"}, &model.Character{Name: "Adena"}, world.EID(7))
	s.setState(StateInWorld)
	s.SetSuspended(true)
	s.failStreak = 2

	p.Release(s)
	reused, _ := p.Acquire()
	require.Same(t, s, reused)

	assert.Equal(t, world.InvalidEID, reused.EID())
	assert.Nil(t, reused.Account())
	assert.Nil(t, reused.Character())
	assert.Equal(t, StateCreated, reused.State())
	assert.False(t, reused.IsSuspended())
	assert.Zero(t, reused.failStreak)
}

func TestPool_ShrinkBackToMin(t *testing.T) {
	p := NewPool(1, 8)
	var held []*Session
	for range 5 {
		s, _ := p.Acquire()
		held = append(held, s)
	}
	for _, s := range held {
		p.Release(s)
	}
	require.Equal(t, 5, p.AvailableCount())

	p.Shrink()
	assert.Equal(t, 1, p.AvailableCount())
}

func TestPool_JanitorShrinksBackToMin(t *testing.T) {
	p := NewPool(1, 8)
	var sessions []*Session
	for range 5 {
		s, err := p.Acquire()
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		p.Release(s)
	}
	require.Equal(t, 5, p.AvailableCount())

	stop := make(chan struct{})
	defer close(stop)
	p.StartJanitor(5*time.Millisecond, stop)

	deadline := time.Now().Add(2 * time.Second)
	for p.AvailableCount() > 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, p.AvailableCount())
}

func TestPool_RecycleDropsLateCallbacks(t *testing.T) {
	p := NewPool(1, 1)
	s, err := p.Acquire()
	require.NoError(t, err)
	p.Release(s)

	// A database worker from the previous occupant completes after the
	// session already went back to the pool.
	stale := false
	exec := db.NewAsyncExecutor(nil, time.Second, 4)
	require.NoError(t, exec.QueryAsync(s.Processor(), func(ctx context.Context) (any, error) {
		return nil, nil
	}, func(any, error) { stale = true }))
	require.True(t, exec.Shutdown(time.Second), "worker must finish")

	reused, err := p.Acquire()
	require.NoError(t, err)
	require.Same(t, s, reused)
	assert.Zero(t, reused.Processor().PumpAll())
	assert.False(t, stale, "retired occupant's callback must not reach the next one")

	// The recycled session accepts its own work again.
	ran := false
	fresh := db.NewAsyncExecutor(nil, time.Second, 4)
	require.NoError(t, fresh.QueryAsync(reused.Processor(), func(ctx context.Context) (any, error) {
		return nil, nil
	}, func(any, error) { ran = true }))
	require.True(t, fresh.Shutdown(time.Second))
	assert.Equal(t, 1, reused.Processor().PumpAll())
	assert.True(t, ran)
}

func TestPool_ClosedRefusesAcquire(t *testing.T) {
	p := NewPool(1, 4)
	p.Close()

	_, err := p.Acquire()
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Equal(t, 0, p.AvailableCount())
}

func TestSessionRef_StaleAfterRecycle(t *testing.T) {
	p := NewPool(1, 4)
	s, _ := p.Acquire()
	s.Bind(&model.BotAccount{}, &model.Character{Name: "Adena"}, world.EID(7))

	ref := NewSessionRef(s)
	require.Same(t, s, ref.Resolve())

	// The session retires and the pool hands it to a new occupant.
	p.Release(s)
	reused, _ := p.Acquire()
	reused.Bind(&model.BotAccount{}, &model.Character{Name: "Bartz"}, world.EID(8))

	assert.Nil(t, ref.Resolve(), "stale ref must not resolve to the new occupant")
}
