package bot

import (
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/model"
	"github.com/udisondev/la2bots/internal/world"
)

// moveEpsilon is the destination distance below which a repeated
// move-to-point command is suppressed. Re-issuing an identical move every
// tick cancels the ongoing motion in the host.
const moveEpsilon = 0.5

// MotionIssuer is the host hook that starts a point-to-point move.
type MotionIssuer interface {
	MoveToPoint(eid world.EID, dest model.Location)
}

// Mover deduplicates point-to-point movement commands for one bot.
// Tick-thread only.
type Mover struct {
	issuer    MotionIssuer
	collector *metrics.Collector
	eid       world.EID

	active bool
	dest   mgl64.Vec3
}

// NewMover creates a mover for the given bot.
func NewMover(eid world.EID, issuer MotionIssuer, collector *metrics.Collector) *Mover {
	return &Mover{issuer: issuer, collector: collector, eid: eid}
}

// MoveTo issues a move unless a point motion to (almost) the same
// destination is already active.
func (m *Mover) MoveTo(dest model.Location) bool {
	want := dest.Vec()
	if m.active && m.dest.Sub(want).Len() <= moveEpsilon {
		if m.collector != nil {
			m.collector.Record(uint64(m.eid), metrics.MetricMovesDeduped)
		}
		if IsDebugEnabled() {
			slog.Debug("suppressed duplicate move", "eid", uint64(m.eid),
				"x", dest.X, "y", dest.Y, "z", dest.Z)
		}
		return false
	}

	m.issuer.MoveToPoint(m.eid, dest)
	m.active = true
	m.dest = want
	if m.collector != nil {
		m.collector.Record(uint64(m.eid), metrics.MetricMovesIssued)
	}
	return true
}

// OnArrived clears the active motion; the next MoveTo always issues.
func (m *Mover) OnArrived() {
	m.active = false
}

// Cancel clears the active motion without a host call.
func (m *Mover) Cancel() {
	m.active = false
}
