// Package store declares persistence interfaces for queries, runs and
// collected content.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/focusops/focus-collector/internal/focus"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrRunTerminal signals a write attempt against a run that already reached
// SUCCEEDED or FAILED.
var ErrRunTerminal = errors.New("run already terminal")

// QueryStore loads collection queries with their sources and keywords.
type QueryStore interface {
	// GetQuery returns the query or ErrNotFound.
	GetQuery(ctx context.Context, id string) (focus.Query, error)
}

// RunStore persists run lifecycle state. Terminal runs are immutable:
// implementations must reject writes after SUCCEEDED/FAILED with
// ErrRunTerminal.
type RunStore interface {
	CreateRun(ctx context.Context, run focus.QueryRun) error
	// MarkRunning transitions PENDING to RUNNING and stamps startedAt.
	MarkRunning(ctx context.Context, runID string, startedAt time.Time) error
	// UpdateProgress persists a progress checkpoint for a RUNNING run.
	UpdateProgress(ctx context.Context, runID string, progress int) error
	// CompleteRun transitions the run to a terminal status.
	CompleteRun(
		ctx context.Context,
		runID string,
		status focus.RunStatus,
		finishedAt time.Time,
		progress int,
		meta map[string]any,
	) error
	GetRun(ctx context.Context, runID string) (focus.QueryRun, error)
}

// ContentStore persists summarized content. Rows are insert-only.
type ContentStore interface {
	InsertContent(ctx context.Context, content focus.Content) error
	// InsertContentKeywords links a content row to keywords. Re-inserting an
	// existing pair is a no-op.
	InsertContentKeywords(ctx context.Context, contentID string, keywordIDs []string) error
}

// Store bundles the three repositories behind one provider.
type Store interface {
	QueryStore
	RunStore
	ContentStore
}
