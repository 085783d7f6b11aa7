// Package bus declares the transient pub/sub abstraction used to bridge run
// events from the orchestrator to live-stream relays.
//
// The bus is explicitly not a durable log: messages published before a
// subscriber attaches are gone, and a reconnecting client must reconcile via
// the run record instead of replay.
package bus

import "context"

// Bus publishes and subscribes raw frames on named channels. Implementations
// must be safe for concurrent use; a single publish fans out to every active
// subscriber of the channel.
type Bus interface {
	// Publish sends one frame to all current subscribers of the channel.
	Publish(ctx context.Context, channel string, data []byte) error

	// Subscribe returns a frame channel for one subscription plus a cancel
	// function that must be called to release it. The frame channel is closed
	// after cancel or when the bus shuts down.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)

	// Close releases the underlying transport.
	Close() error
}
