package verify

import (
	"context"
	"sync"

	"Covenant/internal/ledger"
)

// job is one transaction waiting for a worker.
type job struct {
	ctx   context.Context
	tx    *ledger.LedgerTransaction
	reply chan outcome // reply is buffered so a worker never blocks on an abandoned caller
}

type outcome struct {
	res *Result
	err error
}

// Pool verifies independent transactions on a fixed number of workers.
type Pool struct {
	verifier *Verifier
	jobs     chan job
	closed   chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewPool starts workers goroutines serving v. workers < 1 means one.
func NewPool(v *Verifier, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		verifier: v,
		jobs:     make(chan job),
		closed:   make(chan struct{}),
	}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.closed:
			return
		case j := <-p.jobs:
			if err := j.ctx.Err(); err != nil {
				j.reply <- outcome{err: err}
				continue
			}

			res, err := p.verifier.Verify(j.ctx, j.tx)
			j.reply <- outcome{res: res, err: err}
		}
	}
}

// Submit verifies tx on a worker and waits for the result. It returns early
// with ctx's error if ctx ends first, and ErrPoolClosed after Close.
func (p *Pool) Submit(ctx context.Context, tx *ledger.LedgerTransaction) (*Result, error) {
	j := job{ctx: ctx, tx: tx, reply: make(chan outcome, 1)}

	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case p.jobs <- j:
	}

	select {
	case out := <-j.reply:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers after in-flight verifications finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.closed)
	})

	p.wg.Wait()
}
