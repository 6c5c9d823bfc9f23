package db

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitPending polls until the processor has n queued callbacks or the
// deadline passes. Workers post asynchronously, so tests wait here instead
// of sleeping.
func waitPending(t *testing.T, p *Processor, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Pending() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("processor never reached %d pending callbacks", n)
}

func TestAsyncExecutor_QueryCallbackOnProcessor(t *testing.T) {
	e := NewAsyncExecutor(nil, time.Second, 4)
	p := NewProcessor()

	var got any
	var gotErr error
	err := e.QueryAsync(p, func(ctx context.Context) (any, error) {
		return 42, nil
	}, func(result any, err error) {
		got, gotErr = result, err
	})
	require.NoError(t, err)

	waitPending(t, p, 1)
	assert.Nil(t, got, "callback must not run before the pump")

	p.PumpAll()
	assert.Equal(t, 42, got)
	assert.NoError(t, gotErr)
}

type stubHolder struct {
	err      error
	executed bool
}

func (h *stubHolder) Execute(ctx context.Context, db *DB) error {
	h.executed = true
	return h.err
}

func TestAsyncExecutor_HolderCompletion(t *testing.T) {
	e := NewAsyncExecutor(nil, time.Second, 4)
	p := NewProcessor()

	holder := &stubHolder{}
	var completed bool
	require.NoError(t, e.SubmitHolder(p, holder, func(err error) {
		completed = true
		assert.NoError(t, err)
	}))

	waitPending(t, p, 1)

	// The holder callback lives in the holder queue; query pumping alone
	// must never deliver it.
	p.PumpQueries()
	assert.False(t, completed)

	p.PumpAll()
	assert.True(t, completed)
	assert.True(t, holder.executed)
}

func TestAsyncExecutor_HolderFailurePropagates(t *testing.T) {
	e := NewAsyncExecutor(nil, time.Second, 4)
	p := NewProcessor()

	boom := errors.New("partial result")
	var gotErr error
	require.NoError(t, e.SubmitHolder(p, &stubHolder{err: boom}, func(err error) {
		gotErr = err
	}))

	waitPending(t, p, 1)
	p.PumpAll()
	assert.ErrorIs(t, gotErr, boom)
}

func TestAsyncExecutor_ShutdownRefusesNewWork(t *testing.T) {
	e := NewAsyncExecutor(nil, time.Second, 4)
	p := NewProcessor()

	assert.True(t, e.Shutdown(time.Second))

	err := e.QueryAsync(p, func(ctx context.Context) (any, error) {
		return nil, nil
	}, func(any, error) {})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestAsyncExecutor_BoundsInFlightWork(t *testing.T) {
	e := NewAsyncExecutor(nil, 5*time.Second, 1)
	p := NewProcessor()

	release := make(chan struct{})
	var started atomic.Int32
	for range 3 {
		require.NoError(t, e.QueryAsync(p, func(ctx context.Context) (any, error) {
			started.Add(1)
			<-release
			return nil, nil
		}, func(any, error) {}))
	}

	deadline := time.Now().Add(time.Second)
	for started.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load(), "excess work must wait for a slot")

	close(release)
	waitPending(t, p, 3)
	assert.Equal(t, 3, p.PumpAll())
}

func TestAsyncExecutor_ShutdownWaitsForInflight(t *testing.T) {
	e := NewAsyncExecutor(nil, 5*time.Second, 4)
	p := NewProcessor()

	release := make(chan struct{})
	require.NoError(t, e.QueryAsync(p, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, func(any, error) {}))

	// Worker is blocked: a bounded shutdown gives up.
	assert.False(t, e.Shutdown(50*time.Millisecond))

	close(release)
	waitPending(t, p, 1)
}
