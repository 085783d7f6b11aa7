// Package memory provides a bounded in-memory queue for single-binary
// deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan focus.RunJob
	mu     sync.RWMutex
	closed bool
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		ch: make(chan focus.RunJob, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends. The
// read lock is held across the send so Close cannot close the channel under a
// blocked sender.
func (q *Queue) Enqueue(ctx context.Context, job focus.RunJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return queue.ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (focus.RunJob, error) {
	select {
	case <-ctx.Done():
		return focus.RunJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return focus.RunJob{}, queue.ErrClosed
		}
		return job, nil
	}
}

// Close closes the underlying channel for shutdown. It waits for in-flight
// enqueues to finish or cancel before closing.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
