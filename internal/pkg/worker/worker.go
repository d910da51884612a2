// Package worker runs fire-and-forget tasks. Submitting never blocks and
// there is no queue bound: callers are not back-pressured.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type Pool struct {
	wg      sync.WaitGroup
	running atomic.Int64
	logger  *zap.Logger
}

func New() *Pool {
	return &Pool{logger: zap.L().Named("worker")}
}

// Go starts task in its own goroutine and returns immediately.
// A returned error or a panic is logged under name.
func (p *Pool) Go(ctx context.Context, name string, task func(ctx context.Context) error) {
	p.wg.Add(1)
	p.running.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Add(-1)
		if err := p.run(ctx, task); err != nil {
			p.logger.Error("task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

func (p *Pool) run(ctx context.Context, task func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}

// Running returns the number of tasks that have not finished.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Drain waits for running tasks until ctx is done. Tasks still running
// when ctx expires are abandoned.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("abandoning running tasks", zap.Int("running", p.Running()))
		return ctx.Err()
	}
}
