// Package gcppubsub implements the event bus over Google Cloud Pub/Sub.
//
// All run channels share one topic; the logical channel travels as a message
// attribute and each subscriber filters on it. Subscriptions are ephemeral,
// created per relay and deleted on cancel, so the broker never accumulates
// backlog for channels nobody is watching.
package gcppubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
)

const channelAttribute = "channel"

// Config identifies the shared topic.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Bus publishes and subscribes run event frames through one Pub/Sub topic.
type Bus struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New connects a Bus to the configured project and topic.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project_id and topic_id are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &Bus{client: client, topic: client.Topic(cfg.TopicID)}, nil
}

// Publish sends one frame tagged with the logical channel.
func (b *Bus) Publish(ctx context.Context, channel string, data []byte) error {
	result := b.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{channelAttribute: channel},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	return nil
}

// Subscribe creates an ephemeral subscription and forwards matching frames.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	subID := fmt.Sprintf("relay-%s", uuid.NewString())
	sub, err := b.client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic:            b.topic,
		AckDeadline:      10 * time.Second,
		ExpirationPolicy: 24 * time.Hour,
		Filter:           fmt.Sprintf(`attributes.%s = %q`, channelAttribute, channel),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub create subscription: %w", err)
	}

	recvCtx, stop := context.WithCancel(ctx)
	frames := make(chan []byte)
	go func() {
		defer close(frames)
		err := sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case frames <- msg.Data:
			case <-recvCtx.Done():
			}
		})
		_ = err // receive ends on cancel; nothing to do with the error here
	}()

	var once bool
	cancel := func() {
		if once {
			return
		}
		once = true
		stop()
		delCtx, delCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer delCancel()
		_ = sub.Delete(delCtx)
	}
	return frames, cancel, nil
}

// Close stops the topic publisher and releases the client.
func (b *Bus) Close() error {
	b.topic.Stop()
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("pubsub close: %w", err)
	}
	return nil
}
