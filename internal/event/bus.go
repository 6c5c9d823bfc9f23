package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/la2bots/internal/world"
)

// Bus delivers typed events to subscribers under a single mutex.
// Subscription and publish contend on the same lock, which is acceptable
// because events are low-frequency relative to the AI tick.
type Bus struct {
	name string

	mu       sync.Mutex
	seq      uint64
	handlers map[Type][]*Subscription
	objects  map[Type][]Subscriber

	nextSubID atomic.Uint64

	// statistics, guarded by mu
	published uint64
	perType   [typeCount]uint64
	panics    uint64
}

// NewBus creates a named bus. The name appears in logs and stats dumps.
func NewBus(name string) *Bus {
	return &Bus{
		name:     name,
		handlers: make(map[Type][]*Subscription, typeCount),
		objects:  make(map[Type][]Subscriber, typeCount),
	}
}

// Name returns the bus name.
func (b *Bus) Name() string { return b.name }

// Subscription is the RAII handle for a callback subscription.
// Closing it unsubscribes exactly once; Close is idempotent.
type Subscription struct {
	id      uint64
	handler Handler
	pred    Predicate
	closed  atomic.Bool
}

// ID returns the monotonically increasing subscription id.
func (s *Subscription) ID() uint64 { return s.id }

// Close marks the subscription closed. Delivery stops immediately; the
// bus compacts closed entries out of its lists on the next publish or
// subscribe touching their types. Never takes the bus lock, so a handler
// may close its own (or any other) subscription during delivery.
// Idempotent.
func (s *Subscription) Close() {
	s.closed.Store(true)
}

// Subscribe registers a handler for the given event types, with an
// optional predicate. The returned handle must be closed by its owner;
// destroying a bot tears down its handles before the bot is released.
func (b *Bus) Subscribe(types []Type, handler Handler, pred Predicate) *Subscription {
	sub := &Subscription{
		id:      b.nextSubID.Add(1),
		handler: handler,
		pred:    pred,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.compactLocked(t)
		b.handlers[t] = append(b.handlers[t], sub)
	}
	return sub
}

// compactLocked drops closed subscriptions from one type's handler list.
func (b *Bus) compactLocked(t Type) {
	list := b.handlers[t]
	live := list[:0]
	for _, s := range list {
		if !s.closed.Load() {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(list); i++ {
		list[i] = nil
	}
	b.handlers[t] = live
}

// Attach registers an object subscription. The bus stores the reference
// as-is and trusts the subject to Detach from its own teardown path.
func (b *Bus) Attach(sub Subscriber, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.objects[t] = append(b.objects[t], sub)
	}
}

// Detach removes every object subscription of sub. Idempotent.
func (b *Bus) Detach(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, list := range b.objects {
		filtered := list[:0]
		for _, s := range list {
			if s != sub {
				filtered = append(filtered, s)
			}
		}
		b.objects[t] = filtered
	}
}

// Publish delivers an event to every matching subscriber before returning.
// The lock is held for the duration of delivery; handlers that panic are
// recovered and counted, and delivery continues.
func (b *Bus) Publish(t Type, subject world.EID, payload any) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := Event{
		Type:    t,
		Seq:     b.seq,
		Time:    time.Now(),
		Subject: subject,
		Payload: payload,
	}

	b.published++
	b.perType[t]++

	for _, obj := range b.objects[t] {
		b.deliverObject(obj, ev)
	}
	for _, sub := range b.handlers[t] {
		if sub.closed.Load() {
			continue
		}
		if sub.pred != nil && !sub.pred(ev) {
			continue
		}
		b.deliverHandler(sub, ev)
	}
	b.compactLocked(t)

	return ev.Seq
}

func (b *Bus) deliverObject(obj Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics++
			slog.Error("event subscriber panicked",
				"bus", b.name, "type", ev.Type, "seq", ev.Seq, "panic", r)
		}
	}()
	obj.OnEvent(ev)
}

func (b *Bus) deliverHandler(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics++
			slog.Error("event handler panicked",
				"bus", b.name, "type", ev.Type, "seq", ev.Seq, "sub", sub.id, "panic", r)
		}
	}()
	sub.handler(ev)
}

// Stats is a snapshot of the bus counters.
type Stats struct {
	Published     uint64
	PerType       map[string]uint64
	HandlerPanics uint64
	Subscriptions int
}

// StatsSnapshot returns current counters and live subscription count.
func (b *Bus) StatsSnapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	perType := make(map[string]uint64, typeCount)
	subs := 0
	for t := Type(0); t < typeCount; t++ {
		if b.perType[t] > 0 {
			perType[t.String()] = b.perType[t]
		}
		for _, s := range b.handlers[t] {
			if !s.closed.Load() {
				subs++
			}
		}
		subs += len(b.objects[t])
	}
	return Stats{
		Published:     b.published,
		PerType:       perType,
		HandlerPanics: b.panics,
		Subscriptions: subs,
	}
}
