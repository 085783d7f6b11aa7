// Package memory implements store.Store in process memory for tests and
// single-binary development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/store"
)

// Store holds all records behind one mutex.
type Store struct {
	mu       sync.RWMutex
	queries  map[string]focus.Query
	runs     map[string]focus.QueryRun
	contents map[string]focus.Content
	links    map[string]map[string]struct{}
}

// New returns an empty memory store.
func New() *Store {
	return &Store{
		queries:  make(map[string]focus.Query),
		runs:     make(map[string]focus.QueryRun),
		contents: make(map[string]focus.Content),
		links:    make(map[string]map[string]struct{}),
	}
}

// PutQuery seeds a query.
func (s *Store) PutQuery(q focus.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[q.ID] = q
}

// GetQuery returns a seeded query or store.ErrNotFound.
func (s *Store) GetQuery(_ context.Context, id string) (focus.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queries[id]
	if !ok {
		return focus.Query{}, store.ErrNotFound
	}
	return q, nil
}

// CreateRun records a new run.
func (s *Store) CreateRun(_ context.Context, run focus.QueryRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// MarkRunning transitions PENDING to RUNNING.
func (s *Store) MarkRunning(_ context.Context, runID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	if run.Status.Terminal() {
		return store.ErrRunTerminal
	}
	run.Status = focus.RunRunning
	run.StartedAt = &startedAt
	run.Progress = 0
	s.runs[runID] = run
	return nil
}

// UpdateProgress persists a progress checkpoint.
func (s *Store) UpdateProgress(_ context.Context, runID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	if run.Status.Terminal() {
		return store.ErrRunTerminal
	}
	run.Progress = progress
	s.runs[runID] = run
	return nil
}

// CompleteRun transitions the run to a terminal status.
func (s *Store) CompleteRun(
	_ context.Context,
	runID string,
	status focus.RunStatus,
	finishedAt time.Time,
	progress int,
	meta map[string]any,
) error {
	if !status.Terminal() {
		return fmt.Errorf("complete run: status %q is not terminal", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	if run.Status.Terminal() {
		return store.ErrRunTerminal
	}
	run.Status = status
	run.FinishedAt = &finishedAt
	run.Progress = progress
	run.Meta = meta
	s.runs[runID] = run
	return nil
}

// GetRun returns a run or store.ErrNotFound.
func (s *Store) GetRun(_ context.Context, runID string) (focus.QueryRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return focus.QueryRun{}, store.ErrNotFound
	}
	return run, nil
}

// InsertContent records one content row.
func (s *Store) InsertContent(_ context.Context, content focus.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contents[content.ID]; exists {
		return fmt.Errorf("content %s already exists", content.ID)
	}
	s.contents[content.ID] = content
	return nil
}

// InsertContentKeywords links content to keywords idempotently.
func (s *Store) InsertContentKeywords(_ context.Context, contentID string, keywordIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.links[contentID]
	if !ok {
		set = make(map[string]struct{})
		s.links[contentID] = set
	}
	for _, id := range keywordIDs {
		set[id] = struct{}{}
	}
	return nil
}

// Contents returns all persisted content rows (test helper).
func (s *Store) Contents() []focus.Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]focus.Content, 0, len(s.contents))
	for _, c := range s.contents {
		out = append(out, c)
	}
	return out
}

// KeywordLinks returns the keyword ids linked to a content row (test helper).
func (s *Store) KeywordLinks(contentID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.links[contentID]))
	for id := range s.links[contentID] {
		out = append(out, id)
	}
	return out
}
