// Package worker implements the run execution loop feeding the orchestrator.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/queue"
)

// Executor runs one collection job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, job focus.RunJob) error
}

// Pool consumes queued run jobs with a fixed number of workers.
type Pool struct {
	queue    queue.Queue
	executor Executor
	size     int
	logger   *zap.Logger
}

// New constructs a Pool.
func New(q queue.Queue, executor Executor, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:    q,
		executor: executor,
		size:     size,
		logger:   logger,
	}
}

// Run blocks, consuming queue jobs until the context finishes or the queue
// closes.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, worker int) {
	logger := p.logger.With(zap.Int("worker", worker))
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		logger.Debug("dequeued run job", zap.String("run_id", job.RunID))
		p.processJob(ctx, job, logger)
	}
}

// processJob executes one job with panic isolation. The orchestrator's own
// terminal guard closes the run as FAILED while the panic unwinds, so the
// worker only needs to survive and log it.
func (p *Pool) processJob(ctx context.Context, job focus.RunJob, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run job panicked",
				zap.String("run_id", job.RunID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := p.executor.Execute(ctx, job); err != nil {
		logger.Warn("run job failed",
			zap.String("run_id", job.RunID),
			zap.Error(err),
		)
	}
}
