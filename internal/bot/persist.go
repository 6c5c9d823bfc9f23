package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/udisondev/la2bots/internal/db"
	"github.com/udisondev/la2bots/internal/metrics"
)

// PersistBehavior periodically saves the bot's position and vitals.
// The write runs as one transaction on the executor's workers; the
// completion callback lands in the session's transaction pump, so the
// tick thread never blocks on the database.
type PersistBehavior struct {
	BaseBehavior
	session   *Session
	exec      *db.AsyncExecutor
	chars     *db.CharacterRepository
	collector *metrics.Collector

	inflight bool
}

// NewPersistBehavior creates a saver with the given interval.
func NewPersistBehavior(s *Session, exec *db.AsyncExecutor, chars *db.CharacterRepository,
	collector *metrics.Collector, interval time.Duration) *PersistBehavior {
	return &PersistBehavior{
		BaseBehavior: NewBaseBehavior("persist", interval),
		session:      s,
		exec:         exec,
		chars:        chars,
		collector:    collector,
	}
}

// Update posts the save transaction. A save already in flight is skipped
// rather than queued behind itself.
func (b *PersistBehavior) Update(diff time.Duration) {
	if b.inflight {
		return
	}
	ch := b.session.Character()
	if ch == nil {
		return
	}

	id := ch.ID
	loc := ch.Location
	hp, mp, level := ch.HP, ch.MP, ch.Level
	eid := b.session.EID()

	err := b.exec.TxAsync(b.session.Processor(), func(ctx context.Context, tx pgx.Tx) error {
		if err := b.chars.UpdateLocationTx(ctx, tx, id, loc); err != nil {
			return err
		}
		return b.chars.UpdateVitalsTx(ctx, tx, id, hp, mp, level)
	}, func(err error) {
		b.inflight = false
		if err != nil {
			if b.collector != nil {
				b.collector.Record(uint64(eid), metrics.MetricErrors)
			}
			slog.Warn("bot save failed", "bot", b.session.Name(), "err", err)
		}
	})
	if err != nil {
		// Executor shutting down; the next tick will not retry into it.
		b.SetEnabled(false)
		return
	}
	b.inflight = true
}
