package pool

import (
	"context"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// SemaphorePool bounds concurrency to n goroutines without pinning a fixed
// set of long-lived workers: Submit spawns a fresh goroutine per job but
// blocks until a weighted semaphore slot is free. Unlike Pool it never
// queues beyond that block, so a slow job backs up Submit callers directly
// rather than growing an internal buffer.
type SemaphorePool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	log *zap.Logger
}

// NewSemaphorePool returns a pool allowing at most n jobs to run at once.
func NewSemaphorePool(n int, log *zap.Logger) *SemaphorePool {
	if n < 1 {
		n = 1
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &SemaphorePool{
		sem: semaphore.NewWeighted(int64(n)),
		log: log,
	}
}

// Submit blocks until a slot is free, then runs job in a new goroutine.
// Submit itself returns once the job has been launched, not once it has
// finished.
func (p *SemaphorePool) Submit(ctx context.Context, job Job) error {
	err := p.sem.Acquire(ctx, 1)
	if err != nil {
		return err
	}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Warn("semaphore pool: recovered panic in job",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
			}
		}()

		job()
	}()

	return nil
}

// Wait blocks until every job submitted so far has finished.
func (p *SemaphorePool) Wait() {
	p.wg.Wait()
}
