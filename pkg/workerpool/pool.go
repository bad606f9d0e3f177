// Package workerpool bounds the goroutines used for fire-and-forget work
// (domain event publishing) so a request burst cannot grow them without
// limit.
package workerpool

import (
	"sync"

	"go.uber.org/zap"
)

type Pool struct {
	jobs   chan func()
	logger *zap.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

func New(workers, queueSize int, logger *zap.Logger) *Pool {
	p := &Pool{
		jobs:   make(chan func(), queueSize),
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(job)
			}
		}()
	}
	return p
}

// run executes one job, recovering panics so a bad job cannot kill a worker.
func (p *Pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker pool job panicked", zap.Any("panic", r))
		}
	}()
	job()
}

// Submit enqueues job, dropping it when the queue is full. Callers use the
// pool only for work that may be lost (event emission), so dropping beats
// blocking the request path.
func (p *Pool) Submit(job func()) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.Warn("worker pool queue full, job dropped")
		return false
	}
}

// Stop drains queued jobs and waits for workers to exit.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
