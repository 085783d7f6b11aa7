package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/focus"
	queuemem "github.com/focusops/focus-collector/internal/queue/memory"
)

type recordingExecutor struct {
	mu       sync.Mutex
	executed []string
	err      error
	panicOn  string
}

func (e *recordingExecutor) Execute(_ context.Context, job focus.RunJob) error {
	e.mu.Lock()
	e.executed = append(e.executed, job.RunID)
	e.mu.Unlock()
	if e.panicOn == job.RunID {
		panic("executor exploded")
	}
	return e.err
}

func (e *recordingExecutor) runs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

func TestPool_ExecutesQueuedJobs(t *testing.T) {
	t.Parallel()

	q := queuemem.New(4)
	exec := &recordingExecutor{}
	pool := New(q, exec, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Enqueue(ctx, focus.RunJob{RunID: "run-1"}))
	require.NoError(t, q.Enqueue(ctx, focus.RunJob{RunID: "run-2"}))

	require.Eventually(t, func() bool {
		return len(exec.runs()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop on cancellation")
	}
}

func TestPool_SurvivesPanicAndExecutorError(t *testing.T) {
	t.Parallel()

	q := queuemem.New(4)
	exec := &recordingExecutor{panicOn: "run-boom", err: errors.New("run failed")}
	pool := New(q, exec, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	require.NoError(t, q.Enqueue(ctx, focus.RunJob{RunID: "run-boom"}))
	require.NoError(t, q.Enqueue(ctx, focus.RunJob{RunID: "run-after"}))

	require.Eventually(t, func() bool {
		runs := exec.runs()
		return len(runs) == 2 && runs[1] == "run-after"
	}, time.Second, 10*time.Millisecond, "worker must keep consuming after a panic")
}

func TestPool_StopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := queuemem.New(1)
	pool := New(q, &recordingExecutor{}, 2, zap.NewNop())

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()

	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after queue close")
	}
}
