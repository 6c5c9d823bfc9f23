package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliverAndSequence(t *testing.T) {
	bus := NewBus("test")

	var got []Event
	sub := bus.Subscribe([]Type{TypeBotDied}, func(ev Event) {
		got = append(got, ev)
	}, nil)
	defer sub.Close()

	bus.Publish(TypeBotDied, 7, nil)
	bus.Publish(TypeBotAdded, 8, nil) // not subscribed
	bus.Publish(TypeBotDied, 9, "payload")

	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(3), got[1].Seq)
	assert.Equal(t, "payload", got[1].Payload)
	assert.Less(t, got[0].Seq, got[1].Seq, "sequence numbers must be monotonic")
}

func TestBus_NoDeliveryAfterClose(t *testing.T) {
	bus := NewBus("test")

	delivered := 0
	sub := bus.Subscribe([]Type{TypeCombatStarted}, func(Event) {
		delivered++
	}, nil)

	bus.Publish(TypeCombatStarted, 1, nil)
	sub.Close()
	bus.Publish(TypeCombatStarted, 1, nil)

	assert.Equal(t, 1, delivered)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus("test")
	sub := bus.Subscribe([]Type{TypeBotAdded}, func(Event) {}, nil)

	sub.Close()
	sub.Close()
	sub.Close()

	assert.Equal(t, 0, bus.StatsSnapshot().Subscriptions)
}

func TestBus_CloseInsideHandlerDoesNotDeadlock(t *testing.T) {
	bus := NewBus("test")

	delivered := 0
	var sub *Subscription
	sub = bus.Subscribe([]Type{TypeBotDied}, func(Event) {
		delivered++
		sub.Close()
	}, nil)

	bus.Publish(TypeBotDied, 1, nil)
	bus.Publish(TypeBotDied, 1, nil)

	assert.Equal(t, 1, delivered, "self-closed subscription gets no further events")
	assert.Equal(t, 0, bus.StatsSnapshot().Subscriptions)
}

func TestBus_HandlerMayCloseAnotherSubscription(t *testing.T) {
	bus := NewBus("test")

	victimDelivered := 0
	var victim *Subscription
	closer := bus.Subscribe([]Type{TypeBotDied}, func(Event) {
		victim.Close()
	}, nil)
	victim = bus.Subscribe([]Type{TypeBotDied}, func(Event) {
		victimDelivered++
	}, nil)
	defer closer.Close()

	bus.Publish(TypeBotDied, 1, nil)

	assert.Equal(t, 0, victimDelivered, "a subscription closed mid-delivery is skipped")
	assert.Equal(t, 1, bus.StatsSnapshot().Subscriptions)
}

func TestBus_PredicateFilters(t *testing.T) {
	bus := NewBus("test")

	var got []Event
	sub := bus.Subscribe([]Type{TypeDamageTaken}, func(ev Event) {
		got = append(got, ev)
	}, func(ev Event) bool {
		return ev.Subject == 42
	})
	defer sub.Close()

	bus.Publish(TypeDamageTaken, 41, nil)
	bus.Publish(TypeDamageTaken, 42, nil)
	bus.Publish(TypeDamageTaken, 43, nil)

	require.Len(t, got, 1)
	assert.Equal(t, uint64(42), uint64(got[0].Subject))
}

func TestBus_SubscriptionIDsIncrease(t *testing.T) {
	bus := NewBus("test")

	a := bus.Subscribe([]Type{TypeBotAdded}, func(Event) {}, nil)
	b := bus.Subscribe([]Type{TypeBotAdded}, func(Event) {}, nil)
	defer a.Close()
	defer b.Close()

	assert.Greater(t, b.ID(), a.ID())
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus("test")

	delivered := false
	bad := bus.Subscribe([]Type{TypeBotDied}, func(Event) {
		panic("behaviour bug")
	}, nil)
	good := bus.Subscribe([]Type{TypeBotDied}, func(Event) {
		delivered = true
	}, nil)
	defer bad.Close()
	defer good.Close()

	bus.Publish(TypeBotDied, 1, nil)

	assert.True(t, delivered, "delivery must continue past a panicking handler")
	assert.Equal(t, uint64(1), bus.StatsSnapshot().HandlerPanics)
}

type recordingSubscriber struct {
	events []Event
}

func (r *recordingSubscriber) OnEvent(ev Event) {
	r.events = append(r.events, ev)
}

func TestBus_ObjectSubscription(t *testing.T) {
	bus := NewBus("test")

	rec := &recordingSubscriber{}
	bus.Attach(rec, TypeBotDied, TypeBotRevived)

	bus.Publish(TypeBotDied, 5, nil)
	bus.Publish(TypeBotRevived, 5, nil)
	require.Len(t, rec.events, 2)

	// After Detach no further delivery reaches the object.
	bus.Detach(rec)
	bus.Detach(rec) // idempotent
	bus.Publish(TypeBotDied, 5, nil)
	assert.Len(t, rec.events, 2)
}

func TestBus_Stats(t *testing.T) {
	bus := NewBus("test")
	sub := bus.Subscribe([]Type{TypeBotAdded}, func(Event) {}, nil)
	defer sub.Close()

	bus.Publish(TypeBotAdded, 1, nil)
	bus.Publish(TypeBotAdded, 2, nil)
	bus.Publish(TypeBotDied, 1, nil)

	stats := bus.StatsSnapshot()
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(2), stats.PerType["BotAdded"])
	assert.Equal(t, uint64(1), stats.PerType["BotDied"])
	assert.Equal(t, 1, stats.Subscriptions)
}

func TestBus_ConcurrentPublishKeepsSequenceUnique(t *testing.T) {
	bus := NewBus("test")

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	sub := bus.Subscribe([]Type{TypeChatMessage}, func(ev Event) {
		mu.Lock()
		seen[ev.Seq] = true
		mu.Unlock()
	}, nil)
	defer sub.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				bus.Publish(TypeChatMessage, 1, nil)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 8*500, "every publish must get a unique sequence number")
}
