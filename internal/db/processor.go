package db

import "sync"

// Processor dispatches database callbacks back onto the tick thread.
// Worker goroutines post completed callbacks into one of three queues
// (single query, transaction, query holder) and the owning session pumps
// them from its tick.
//
// A login in progress MUST drain all three queues every tick: the
// character load is materialised by holder callbacks that single-query
// pumping will never touch.
type Processor struct {
	mu      sync.Mutex
	closed  bool
	queries []func()
	txs     []func()
	holders []func()
}

// NewProcessor creates an empty processor.
func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) postQuery(fn func()) {
	p.mu.Lock()
	if !p.closed {
		p.queries = append(p.queries, fn)
	}
	p.mu.Unlock()
}

func (p *Processor) postTx(fn func()) {
	p.mu.Lock()
	if !p.closed {
		p.txs = append(p.txs, fn)
	}
	p.mu.Unlock()
}

func (p *Processor) postHolder(fn func()) {
	p.mu.Lock()
	if !p.closed {
		p.holders = append(p.holders, fn)
	}
	p.mu.Unlock()
}

// PumpQueries runs ready single-query callbacks and returns how many ran.
// Never blocks: drains what is ready and returns.
func (p *Processor) PumpQueries() int {
	return p.drain(&p.queries)
}

// PumpTransactions runs ready transaction callbacks.
func (p *Processor) PumpTransactions() int {
	return p.drain(&p.txs)
}

// PumpHolders runs ready query-holder completion callbacks.
func (p *Processor) PumpHolders() int {
	return p.drain(&p.holders)
}

// PumpAll drains all three callback families. This is the only safe pump
// during login: see the package note above.
func (p *Processor) PumpAll() int {
	return p.PumpQueries() + p.PumpTransactions() + p.PumpHolders()
}

// Discard drops every queued callback without running it and closes the
// processor: posts from workers that were still running at retirement are
// refused until Reopen, so a late completion can never be dispatched to
// the session's next occupant.
func (p *Processor) Discard() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	n := len(p.queries) + len(p.txs) + len(p.holders)
	p.queries = nil
	p.txs = nil
	p.holders = nil
	return n
}

// Reopen re-arms a discarded processor for a new occupant.
func (p *Processor) Reopen() {
	p.mu.Lock()
	p.closed = false
	p.mu.Unlock()
}

// Pending returns the total number of queued callbacks.
func (p *Processor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries) + len(p.txs) + len(p.holders)
}

func (p *Processor) drain(queue *[]func()) int {
	p.mu.Lock()
	ready := *queue
	*queue = nil
	p.mu.Unlock()

	for _, fn := range ready {
		fn()
	}
	return len(ready)
}
