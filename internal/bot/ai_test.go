package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udisondev/la2bots/internal/event"
	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/model"
	"github.com/udisondev/la2bots/internal/world"
)

type recordingAcker struct {
	acked []world.EID
}

func (r *recordingAcker) AcknowledgeTeleport(eid world.EID) {
	r.acked = append(r.acked, eid)
}

func newTestAI(t *testing.T, deps AIDeps) (*AI, *Session) {
	t.Helper()
	f := NewFactory(deps)
	f.RegisterClass(1, func(ai *AI) error { return nil })

	s := boundSession("fighter", 1, 0)
	s.setState(StateInWorld)
	ai, err := f.Create(s)
	require.NoError(t, err)
	return ai, s
}

func TestAI_DeathSchedulesDeferredTeleportAck(t *testing.T) {
	acker := &recordingAcker{}
	deps := testDeps()
	deps.Hooks.Teleport = acker

	ai, s := newTestAI(t, deps)
	deps.Bus.Publish(event.TypeBotDied, s.EID(), nil)

	assert.True(t, ai.IsDead())
	require.Equal(t, 1, deps.Deferred.Len(), "ack must be deferred, not immediate")
	assert.Empty(t, acker.acked)

	deps.Deferred.Drain(time.Now().Add(releaseSpiritDelay))
	require.Len(t, acker.acked, 1)
	assert.Equal(t, s.EID(), acker.acked[0])
	assert.Equal(t, uint64(1),
		deps.Collector.GetBot(uint64(s.EID()))[metrics.MetricDeferredFired])
}

func TestAI_DeferredAckDroppedForRetiredSession(t *testing.T) {
	// The bot dies and is retired before the deferred ack fires. The
	// closure holds a generation reference; the recycled session must
	// never receive the stale teleport ack.
	acker := &recordingAcker{}
	deps := testDeps()
	deps.Hooks.Teleport = acker

	_, s := newTestAI(t, deps)
	deps.Bus.Publish(event.TypeBotDied, s.EID(), nil)
	require.Equal(t, 1, deps.Deferred.Len())

	s.teardown(deps.Bus)
	s.reset()

	deps.Deferred.Drain(time.Now().Add(time.Second))
	assert.Empty(t, acker.acked)
}

func TestAI_ReviveClearsDeath(t *testing.T) {
	deps := testDeps()
	ai, s := newTestAI(t, deps)

	deps.Bus.Publish(event.TypeBotDied, s.EID(), nil)
	require.True(t, ai.IsDead())

	deps.Bus.Publish(event.TypeBotRevived, s.EID(), nil)
	assert.False(t, ai.IsDead())
}

func TestAI_IgnoresEventsForOtherBots(t *testing.T) {
	deps := testDeps()
	ai, _ := newTestAI(t, deps)

	other := world.IDGenerator().NextBotEID()
	deps.Bus.Publish(event.TypeCombatStarted, other, nil)
	deps.Bus.Publish(event.TypeBotDied, other, nil)

	assert.False(t, ai.Status().InCombat)
	assert.False(t, ai.IsDead())
}

func TestAI_DamageMarksHostile(t *testing.T) {
	deps := testDeps()
	ai, s := newTestAI(t, deps)

	deps.Bus.Publish(event.TypeDamageTaken, s.EID(), nil)
	st := ai.Status()
	assert.True(t, st.Hostile)
	assert.WithinDuration(t, time.Now(), st.LastDamagedAt, time.Second)
}

type tickCountBehavior struct {
	BaseBehavior
	runs int
}

func (b *tickCountBehavior) Update(diff time.Duration) { b.runs++ }

func TestAI_UpdateHonoursBehaviorInterval(t *testing.T) {
	deps := testDeps()
	ai, s := newTestAI(t, deps)

	b := &tickCountBehavior{BaseBehavior: NewBaseBehavior("rotation", 100*time.Millisecond)}
	s.AddBehavior(b)

	// Four 50ms ticks: the interval elapses on every second one.
	for range 4 {
		ai.Update(50 * time.Millisecond)
	}
	assert.Equal(t, 2, b.runs)

	b.SetEnabled(false)
	for range 4 {
		ai.Update(50 * time.Millisecond)
	}
	assert.Equal(t, 2, b.runs, "disabled behaviour never runs")
}

type nearbyPlayer struct {
	eid world.EID
	loc model.Location
}

func (p *nearbyPlayer) EID() world.EID           { return p.eid }
func (p *nearbyPlayer) Name() string             { return "player" }
func (p *nearbyPlayer) Location() model.Location { return p.loc }

func TestAI_StatusSeesNearbyHumans(t *testing.T) {
	deps := testDeps()
	ai, s := newTestAI(t, deps)
	s.character.Location = model.Location{X: 1000, Y: 1000, Z: 0}
	deps.Table.Add(s)

	assert.True(t, ai.Status().HiddenFromPlayers)

	deps.Table.Add(&nearbyPlayer{
		eid: world.IDGenerator().NextPlayerEID(),
		loc: model.Location{X: 1100, Y: 1000, Z: 0},
	})
	st := ai.Status()
	assert.True(t, st.PartyWithHuman || !st.HiddenFromPlayers)

	// A player outside notice range does not count.
	deps2 := testDeps()
	ai2, s2 := newTestAI(t, deps2)
	s2.character.Location = model.Location{X: 0, Y: 0, Z: 0}
	deps2.Table.Add(s2)
	deps2.Table.Add(&nearbyPlayer{
		eid: world.IDGenerator().NextPlayerEID(),
		loc: model.Location{X: 5000, Y: 0, Z: 0},
	})
	assert.True(t, ai2.Status().HiddenFromPlayers)
}
