// Package pool implements the shared-queue thread pool that dispatches
// connection handlers: a fixed set of worker goroutines pulling jobs off one
// channel, with panic isolation so one bad job never takes the pool down.
package pool

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Job is a unit of work submitted to a Pool.
type Job func()

// Pool is a fixed-size group of worker goroutines sharing one job queue.
type Pool struct {
	jobs   chan Job
	wg     sync.WaitGroup
	log    *zap.Logger
	closed chan struct{}
	once   sync.Once
}

// New starts a pool of n worker goroutines, each pulling jobs off a shared
// queue of depth queueDepth. log receives one Warn entry per recovered
// panic; a nil log runs silently.
func New(n, queueDepth int, log *zap.Logger) *Pool {
	if n < 1 {
		n = 1
	}

	if queueDepth < 0 {
		queueDepth = 0
	}

	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{
		jobs:   make(chan Job, queueDepth),
		log:    log,
		closed: make(chan struct{}),
	}

	p.wg.Add(n)

	for i := range n {
		go p.worker(i)
	}

	return p
}

// worker pulls jobs until the queue is closed. A job that panics is
// recovered and logged; the worker then resumes pulling jobs, so one
// misbehaving job never shrinks the pool.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("pool: recovered panic in job",
				zap.Int("worker", id),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()

	job()
}

// Spawn enqueues job for execution by some worker. It blocks if the queue
// is full. Spawn panics if called after Close.
func (p *Pool) Spawn(job Job) {
	select {
	case <-p.closed:
		panic("pool: spawn after close")
	default:
	}

	p.jobs <- job
}

// Close stops accepting new jobs and blocks until every already-submitted
// job has finished and every worker has exited. Close is idempotent.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.closed)
		close(p.jobs)
	})

	p.wg.Wait()
}
