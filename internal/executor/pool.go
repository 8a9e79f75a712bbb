package executor

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
)

// Pool bounds how many subprocesses run at once. Submissions beyond the
// cap wait on the admission semaphore; ordering between submissions is
// the caller's concern.
type Pool struct {
	executor core.Executor
	sem      *semaphore.Weighted
}

func NewPool(executor core.Executor, maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{
		executor: executor,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (p *Pool) Run(ctx context.Context, cmd core.Command) core.ExecutionOutcome {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		// Cancelled while waiting for admission; nothing was spawned.
		return core.ExecutionOutcome{
			Status:   core.StatusCancelled,
			ExitCode: -1,
		}
	}
	defer p.sem.Release(1)

	return p.executor.Run(ctx, cmd)
}
