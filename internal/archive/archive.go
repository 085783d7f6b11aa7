// Package archive declares the raw snapshot store used to keep fetched HTML
// bodies for operator inspection. Snapshot failures are never fatal to a run.
package archive

import "context"

// Store writes raw artifacts and returns a URI.
type Store interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// NoOp discards snapshots.
type NoOp struct{}

// Put discards the data and returns an empty URI.
func (NoOp) Put(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}
