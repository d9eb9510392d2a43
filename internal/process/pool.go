package process

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of external processes running at once across all
// jobs. Waiting for a slot honours the caller's context.
type Pool struct {
	runner Runner
	sem    *semaphore.Weighted
}

func NewPool(runner Runner, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(size)),
	}
}

func (p *Pool) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{ExitCode: -1}, err
	}
	defer p.sem.Release(1)
	return p.runner.Run(ctx, cmd)
}
