package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/la2bots/internal/db"
	"github.com/udisondev/la2bots/internal/event"
	"github.com/udisondev/la2bots/internal/metrics"
	"github.com/udisondev/la2bots/internal/world"
)

// holderRetryLimit caps transient holder retries before a spawn fails.
const holderRetryLimit = 3

// SpawnRequest asks the pipeline to boot one bot.
type SpawnRequest struct {
	Login       string
	Password    string
	CharacterID int64
	// Reconnect marks a respawn after a crash; it jumps the entry queue.
	Reconnect bool
}

// LoginPipeline boots bots from character records via asynchronous
// database callbacks, without ever blocking the tick thread.
//
// State machine per session:
//
//	CREATED → STATEMENTS_POSTED → HOLDER_READY → WORLD_ENTRY_QUEUED → IN_WORLD
//	                     ↘ FAILED ↗
type LoginPipeline struct {
	exec      *db.AsyncExecutor
	accounts  *db.AccountRepository
	entry     *EntryQueue
	manager   *Manager
	pool      *Pool
	factory   *Factory
	table     *world.Table
	bus       *event.Bus
	collector *metrics.Collector
	gen       *world.EIDGenerator

	admitPerTick int

	mu   sync.Mutex
	jobs []*loginJob
}

type loginJob struct {
	session *Session
	req     SpawnRequest
	holder  *db.CharacterHolder
	retries int
	done    bool
}

// NewLoginPipeline wires the pipeline.
func NewLoginPipeline(exec *db.AsyncExecutor, accounts *db.AccountRepository,
	entry *EntryQueue, manager *Manager, pool *Pool, factory *Factory,
	table *world.Table, bus *event.Bus, collector *metrics.Collector,
	gen *world.EIDGenerator, admitPerTick int) *LoginPipeline {
	if admitPerTick <= 0 {
		admitPerTick = 4
	}
	return &LoginPipeline{
		exec:         exec,
		accounts:     accounts,
		entry:        entry,
		manager:      manager,
		pool:         pool,
		factory:      factory,
		table:        table,
		bus:          bus,
		collector:    collector,
		gen:          gen,
		admitPerTick: admitPerTick,
	}
}

// Spawn allocates a session and posts the character load. The account
// fetch is synchronous: a missing account is a configuration error that
// refuses the spawn outright, logged once per login, never retried.
//
// The synchronous roundtrip makes Spawn a startup and operator-console
// entry point. Do not call it from the tick thread; a slow account
// lookup would stall every bot for the duration.
func (p *LoginPipeline) Spawn(ctx context.Context, req SpawnRequest) (*Session, error) {
	session, err := p.pool.Acquire()
	if err != nil {
		return nil, err
	}
	session.setState(StateCreated)

	account, err := p.accounts.GetOrCreateAccount(ctx, req.Login, req.Password)
	if err != nil {
		p.pool.Release(session)
		return nil, fmt.Errorf("resolving bot account %q: %w", req.Login, err)
	}
	session.account = account

	job := &loginJob{session: session, req: req}
	if err := p.postHolder(job); err != nil {
		p.pool.Release(session)
		return nil, err
	}
	session.setState(StateStatementsPosted)

	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()

	slog.Info("bot spawn posted", "login", req.Login, "characterID", req.CharacterID)
	return session, nil
}

func (p *LoginPipeline) postHolder(job *loginJob) error {
	job.holder = db.NewCharacterHolder(job.req.CharacterID)
	return p.exec.SubmitHolder(job.session.proc, job.holder, func(err error) {
		p.onHolderComplete(job, err)
	})
}

// onHolderComplete runs on the tick thread, from the session's holder
// callback pump.
func (p *LoginPipeline) onHolderComplete(job *loginJob, err error) {
	session := job.session

	switch {
	case err == nil && job.holder.Character != nil:
		eid := p.gen.NextBotEID()
		session.Bind(session.account, job.holder.Character, eid)
		session.setState(StateHolderReady)

	case errors.Is(err, db.ErrCharacterNotFound):
		// Configuration error: refuse, log once, never retry.
		slog.Error("bot character missing, refusing spawn",
			"login", job.req.Login, "characterID", job.req.CharacterID)
		session.setState(StateFailed)

	default:
		// Transient (timeout, partial result): retry with the holder
		// resubmitted, capped attempts.
		job.retries++
		p.collector.Record(uint64(session.EID()), metrics.MetricLoginRetries)
		if job.retries >= holderRetryLimit {
			slog.Error("character load failed permanently",
				"login", job.req.Login, "characterID", job.req.CharacterID, "err", err)
			session.setState(StateFailed)
			return
		}
		slog.Warn("character load failed, retrying",
			"login", job.req.Login, "attempt", job.retries, "err", err)
		if rerr := p.postHolder(job); rerr != nil {
			session.setState(StateFailed)
		}
	}
}

// Tick advances every login in progress. Each session's processor drains
// ALL THREE callback families: the character load is materialised by
// holder callbacks that single-query pumping would never deliver.
func (p *LoginPipeline) Tick() {
	p.mu.Lock()
	jobs := make([]*loginJob, len(p.jobs))
	copy(jobs, p.jobs)
	p.mu.Unlock()

	for _, job := range jobs {
		job.session.proc.PumpAll()

		switch job.session.State() {
		case StateHolderReady:
			p.enqueueEntry(job)
		case StateInWorld, StateFailed:
			p.finish(job)
		}
	}

	p.entry.Process(p.admitPerTick)

	// Entry completion may have flipped states; reap in the same tick.
	for _, job := range jobs {
		if !job.done {
			st := job.session.State()
			if st == StateInWorld || st == StateFailed {
				p.finish(job)
			}
		}
	}
}

func (p *LoginPipeline) enqueueEntry(job *loginJob) {
	job.session.setState(StateWorldEntryQueued)
	p.entry.Queue(&Entry{
		Session:   job.session,
		Reconnect: job.req.Reconnect,
		Run:       func() error { return p.enterWorld(job.session) },
	})
}

// enterWorld completes the host's player-login sequence: registers the
// entity, attaches the AI, and inserts the session into the manager.
func (p *LoginPipeline) enterWorld(session *Session) error {
	p.table.Add(session)

	if _, err := p.factory.Create(session); err != nil {
		p.table.Remove(session.EID())
		return fmt.Errorf("attaching AI: %w", err)
	}

	if err := p.manager.Add(session); err != nil {
		session.teardown(p.bus)
		p.table.Remove(session.EID())
		return fmt.Errorf("registering session: %w", err)
	}

	session.setState(StateInWorld)
	p.bus.Publish(event.TypeWorldEntered, session.EID(), session.Name())
	return nil
}

// finish reaps a terminal job. Failed sessions disappear quietly: the
// session returns to the pool and the cause is visible in logs and stats.
func (p *LoginPipeline) finish(job *loginJob) {
	job.done = true

	p.mu.Lock()
	for i, j := range p.jobs {
		if j == job {
			p.jobs = append(p.jobs[:i], p.jobs[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if job.session.State() == StateFailed {
		if eid := job.session.EID(); eid != world.InvalidEID {
			p.table.Remove(eid)
		}
		p.pool.Release(job.session)
	}
}

// PendingLogins returns the number of logins in progress.
func (p *LoginPipeline) PendingLogins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// DrainTimeout waits for outstanding logins during shutdown, abandoning
// them after the bound.
func (p *LoginPipeline) DrainTimeout(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.PendingLogins() == 0 {
			return true
		}
		p.Tick()
		time.Sleep(10 * time.Millisecond)
	}
	return p.PendingLogins() == 0
}
