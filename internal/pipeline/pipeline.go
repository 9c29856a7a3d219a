// Package pipeline fans document chunks out to the LLM under a concurrency
// cap and a dispatch pace, and gathers the completions in input order.
package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"compliance-rag/internal/domain"
	"compliance-rag/internal/logger"
	"compliance-rag/internal/metrics"
)

const (
	DefaultWorkers       = 5
	DefaultDispatchDelay = 2 * time.Second
)

// Completer completes a single chunk. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, chunk string, index int) (string, error)
}

type Config struct {
	Workers       int
	DispatchDelay time.Duration
}

type Pipeline struct {
	completer Completer
	workers   int
	delay     time.Duration
	metrics   *metrics.Metrics
}

func New(completer Completer, cfg Config, m *metrics.Metrics) (*Pipeline, error) {
	if completer == nil {
		return nil, errors.New("pipeline: completer is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.DispatchDelay < 0 {
		cfg.DispatchDelay = 0
	}
	return &Pipeline{completer: completer, workers: cfg.Workers, delay: cfg.DispatchDelay, metrics: m}, nil
}

// Process returns one completion per chunk, in chunk order. If any chunk
// fails the whole run fails and no completions are returned.
//
// Cancellation is observed between dispatches, including while waiting for
// the pacer or a free worker: once ctx is done no further chunk is
// submitted, while calls already in flight run to completion.
func (p *Pipeline) Process(ctx context.Context, chunks []string) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	log := logger.FromContext(ctx)
	log.Info("Processing total chunks", "chunks", len(chunks))
	start := time.Now()
	defer func() { p.metrics.PipelineDuration(time.Since(start)) }()

	results := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	// dispatchCtx is canceled by a failing chunk before its slot is released.
	dispatchCtx, stop := context.WithCancel(gctx)
	defer stop()
	slots := semaphore.NewWeighted(int64(p.workers))
	pacer := p.newPacer()
	callCtx := context.WithoutCancel(ctx)

	var dispatchErr error
	for i, chunk := range chunks {
		if err := dispatchCtx.Err(); err != nil {
			dispatchErr = err
			break
		}
		if err := pacer.Wait(dispatchCtx); err != nil {
			dispatchErr = err
			break
		}
		if err := slots.Acquire(dispatchCtx, 1); err != nil {
			dispatchErr = err
			break
		}
		if err := dispatchCtx.Err(); err != nil {
			slots.Release(1)
			dispatchErr = err
			break
		}
		g.Go(func() error {
			defer slots.Release(1)
			out, err := p.completer.Complete(callCtx, chunk, i)
			if err != nil {
				stop()
				return err
			}
			results[i] = out
			p.metrics.ChunkCompleted()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Chunk pipeline failed", "chunk", domain.ChunkIndexOf(err), "kind", domain.KindOf(err), "error", err)
		return nil, err
	}
	if dispatchErr != nil {
		log.Warn("Chunk pipeline canceled between dispatches", "error", dispatchErr)
		return nil, domain.NewError(domain.KindCanceled, "pipeline.process", dispatchErr)
	}
	return results, nil
}

// newPacer lets the first dispatch through immediately and spaces later ones by delay.
func (p *Pipeline) newPacer() *rate.Limiter {
	if p.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.delay), 1)
}
