// Package redis implements the event bus over Redis pub/sub channels.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

const connectTimeout = 5 * time.Second

// Bus publishes and subscribes run event frames on Redis channels. Redis
// pub/sub is fire-and-forget, which matches the transient semantics required
// here: no replay, native fan-out to every subscriber of a channel.
type Bus struct {
	client *redis.Client
}

// New connects a Bus and verifies the connection with a ping.
func New(cfg Config) (*Bus, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{client: client}, nil
}

// Publish sends one frame to the channel.
func (b *Bus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription and copies payloads to the returned
// channel until cancel is called or the context finishes.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := b.client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round trip so errors surface here, not on first read.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	frames := make(chan []byte)
	done := make(chan struct{})
	go func() {
		defer close(frames)
		src := sub.Channel()
		for {
			select {
			case msg, ok := <-src:
				if !ok {
					return
				}
				select {
				case frames <- []byte(msg.Payload):
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once bool
	cancel := func() {
		if once {
			return
		}
		once = true
		close(done)
		sub.Close()
	}
	return frames, cancel, nil
}

// Close releases the Redis client.
func (b *Bus) Close() error {
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
