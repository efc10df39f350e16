// Package bgworker runs work on a bounded pool of goroutines.
package bgworker

import (
	"context"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/caarlos0/env/v11"

	errs "github.com/amp-labs/amp-fsm/errors"
	"github.com/amp-labs/amp-fsm/logger"
)

const defaultWorkerCount = 10

type config struct {
	Workers int `env:"BACKGROUND_WORKER_COUNT" envDefault:"10"`
}

// Pool is a bounded worker pool.
type Pool struct {
	pool pond.Pool
}

// New creates a pool running at most workers tasks at once. A non-positive
// count reads BACKGROUND_WORKER_COUNT, falling back to 10.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = defaultWorkerCount

		if cfg, err := env.ParseAs[config](); err == nil && cfg.Workers > 0 {
			workers = cfg.Workers
		}
	}

	return &Pool{pool: pond.NewPool(workers)}
}

// Submit submits a function to the pool. The returned Task waits for it.
func (p *Pool) Submit(f func()) pond.Task { //nolint:ireturn
	return p.pool.Submit(f)
}

// Go submits a function without waiting. It fails once the pool is stopped.
func (p *Pool) Go(f func()) error {
	return p.pool.Go(f)
}

// Each calls f for every index in [0, n) on the pool and waits for all of
// them. Every failure is reported, prefixed with its index.
func (p *Pool) Each(ctx context.Context, n int, f func(ctx context.Context, i int) error) error {
	var (
		mu        sync.Mutex
		collected errs.Collection
		wg        sync.WaitGroup
	)

	for i := range n {
		wg.Add(1)

		err := p.pool.Go(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				return
			}

			if err := f(ctx, i); err != nil {
				mu.Lock()
				collected.Addf(err, "task %d", i)
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()

			mu.Lock()
			collected.Addf(err, "task %d", i)
			mu.Unlock()
		}
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		collected.Add(err)
	}

	return collected.GetError()
}

// Stop waits for queued work and stops the pool.
func (p *Pool) Stop(ctx context.Context) {
	logger.Get(ctx).Debug("Stopping background worker pool", "running", p.pool.RunningWorkers())
	p.pool.StopAndWait()
}

func (p *Pool) String() string {
	return fmt.Sprintf("bgworker.Pool{max=%d}", p.pool.MaxConcurrency())
}
