// Package memory provides an in-memory snapshot store for tests.
package memory

import (
	"context"
	"sync"
)

// Store records snapshots in a map for inspection.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns a memory Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Put records the data and returns a mem:// URI.
func (s *Store) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[path] = cp
	return "mem://" + path, nil
}

// Object returns a stored snapshot and whether it exists.
func (s *Store) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
