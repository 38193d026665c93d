package workerpool

import (
	"context"
	"sync"

	"go.uber.org/multierr"
)

// Job is a unit of work run by the pool.
type Job func() error

// Pool runs jobs on a fixed number of goroutines. Jobs may be added at any
// time until Stop is called, and Wait may be called repeatedly to wait for
// the jobs added so far.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan Job

	pending sync.WaitGroup
	workers sync.WaitGroup

	m       sync.Mutex
	err     error
	dropped int
}

// New creates a pool with n workers.
func New(n int) *Pool {
	return NewWithCtx(context.Background(), n)
}

// NewWithCtx creates a pool with n workers that stops picking up new jobs
// once ctx is done.
func NewWithCtx(ctx context.Context, n int) *Pool {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan Job),
	}
	p.workers.Add(n)
	for i := 0; i < n; i++ {
		go p.work()
	}
	return p
}

// Add queues jobs without blocking the caller.
func (p *Pool) Add(jobs []Job) {
	p.pending.Add(len(jobs))
	go p.enqueue(jobs)
}

// AddBlocking queues jobs, returning once every job has been picked up by a
// worker (or dropped because the pool was stopped).
func (p *Pool) AddBlocking(jobs []Job) {
	p.pending.Add(len(jobs))
	p.enqueue(jobs)
}

// Wait blocks until all jobs added so far have finished. It returns the
// errors returned by those jobs combined into one, and resets the pool's
// error state so that the pool can be reused for another round of jobs.
func (p *Pool) Wait() error {
	p.pending.Wait()

	p.m.Lock()
	defer p.m.Unlock()
	err := p.err
	if p.dropped > 0 {
		err = multierr.Append(err, p.ctx.Err())
	}
	p.err = nil
	p.dropped = 0
	return err
}

// Stop shuts down the workers. Jobs that have not started yet are dropped.
func (p *Pool) Stop() {
	p.cancel()
	p.workers.Wait()
}

func (p *Pool) enqueue(jobs []Job) {
	for i, job := range jobs {
		select {
		case p.jobs <- job:
		case <-p.ctx.Done():
			remaining := len(jobs) - i
			p.m.Lock()
			p.dropped += remaining
			p.m.Unlock()
			p.pending.Add(-remaining)
			return
		}
	}
}

func (p *Pool) work() {
	defer p.workers.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			p.run(job)
		}
	}
}

func (p *Pool) run(job Job) {
	defer p.pending.Done()
	if err := job(); err != nil {
		p.m.Lock()
		p.err = multierr.Append(p.err, err)
		p.m.Unlock()
	}
}
