package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/model"
	"github.com/udisondev/la2bots/internal/world"
)

type recordingIssuer struct {
	calls []model.Location
}

func (r *recordingIssuer) MoveToPoint(eid world.EID, dest model.Location) {
	r.calls = append(r.calls, dest)
}

func TestMover_DedupsNearIdenticalDestination(t *testing.T) {
	issuer := &recordingIssuer{}
	c := metrics.NewCollector()
	eid := world.EID(0x2000000000000001)
	m := NewMover(eid, issuer, c)

	dest := model.Location{X: 100, Y: 200, Z: -50}
	assert.True(t, m.MoveTo(dest))

	// Same point every tick: the host must see exactly one command.
	for range 10 {
		assert.False(t, m.MoveTo(dest))
	}
	// Within epsilon still counts as the same destination.
	assert.False(t, m.MoveTo(model.Location{X: 100.3, Y: 200, Z: -50}))

	assert.Len(t, issuer.calls, 1)
	assert.Equal(t, uint64(1), c.GetBot(uint64(eid))[metrics.MetricMovesIssued])
	assert.Equal(t, uint64(11), c.GetBot(uint64(eid))[metrics.MetricMovesDeduped])
}

func TestMover_BeyondEpsilonIssues(t *testing.T) {
	issuer := &recordingIssuer{}
	m := NewMover(world.EID(1), issuer, nil)

	assert.True(t, m.MoveTo(model.Location{X: 0, Y: 0, Z: 0}))
	assert.True(t, m.MoveTo(model.Location{X: 0.6, Y: 0, Z: 0}))
	assert.Len(t, issuer.calls, 2)
}

func TestMover_ReissuesAfterArrival(t *testing.T) {
	issuer := &recordingIssuer{}
	m := NewMover(world.EID(1), issuer, nil)
	dest := model.Location{X: 100, Y: 200, Z: -50}

	assert.True(t, m.MoveTo(dest))
	m.OnArrived()
	assert.True(t, m.MoveTo(dest), "arrival clears the active motion")
	assert.Len(t, issuer.calls, 2)
}

func TestMover_CancelClearsActiveMotion(t *testing.T) {
	issuer := &recordingIssuer{}
	m := NewMover(world.EID(1), issuer, nil)
	dest := model.Location{X: 1, Y: 2, Z: 3}

	m.MoveTo(dest)
	m.Cancel()
	assert.True(t, m.MoveTo(dest))
	assert.Len(t, issuer.calls, 2)
}
