// Package worker runs document jobs on a fixed set of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"compliance-rag/internal/logger"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 100
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("worker: pool closed")

// Job is one unit of work. Its error is logged; it does not stop the pool.
type Job func(ctx context.Context) error

type Config struct {
	Workers   int
	QueueSize int
}

type Pool struct {
	jobs     chan Job
	done     chan struct{}
	g        errgroup.Group
	closeMu  sync.RWMutex
	closed   bool
	shutdown sync.Once
}

// Start launches the workers. Jobs run with ctx; cancel it to ask running
// jobs to stop early.
func Start(ctx context.Context, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	p := &Pool{jobs: make(chan Job, cfg.QueueSize), done: make(chan struct{})}
	log := logger.FromContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		wlog := log.With("worker", i)
		wctx := logger.ContextWithLogger(ctx, wlog)
		p.g.Go(func() error {
			for job := range p.jobs {
				if err := job(wctx); err != nil {
					wlog.Warn("Job failed", "error", err)
				}
			}
			return nil
		})
	}
	return p
}

// Submit enqueues job, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() error {
	p.shutdown.Do(func() {
		close(p.done)
		p.closeMu.Lock()
		p.closed = true
		close(p.jobs)
		p.closeMu.Unlock()
	})
	return p.g.Wait()
}
