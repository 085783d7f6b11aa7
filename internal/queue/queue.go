// Package queue defines the job queue feeding run jobs to workers.
package queue

import (
	"context"
	"errors"

	"github.com/focusops/focus-collector/internal/focus"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue hands run jobs from the API to the worker pool.
type Queue interface {
	// Enqueue pushes a job or returns when the context ends.
	Enqueue(ctx context.Context, job focus.RunJob) error
	// Dequeue pops the next job, respecting context cancellation.
	Dequeue(ctx context.Context) (focus.RunJob, error)
	// Close shuts the queue down for draining.
	Close()
}
