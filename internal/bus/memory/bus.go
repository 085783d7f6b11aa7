// Package memory provides an in-process bus for tests and single-binary runs.
package memory

import (
	"context"
	"errors"
	"sync"
)

const defaultSubscriberBuffer = 64

// Bus fans frames out to channel subscribers over Go channels. Slow
// subscribers drop frames instead of blocking publishers, matching the
// transient semantics of the real brokers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan []byte
	nextID int
	closed bool
}

// New constructs a Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]chan []byte)}
}

// Publish delivers the frame to every subscriber of the channel. Frames for
// full subscriber buffers are dropped.
func (b *Bus) Publish(_ context.Context, channel string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("bus closed")
	}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber for the channel.
func (b *Bus) Subscribe(_ context.Context, channel string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, errors.New("bus closed")
	}
	id := b.nextID
	b.nextID++
	ch := make(chan []byte, defaultSubscriberBuffer)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan []byte)
	}
	b.subs[channel][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[channel][id]; ok {
			delete(b.subs[channel], id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Close tears down all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subs = make(map[string]map[int]chan []byte)
	return nil
}
