package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisBroker implements MessageBroker over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
}

// NewRedisBroker creates a Redis-backed relay broker. The client may be
// shared with other components.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends an event to the specified channel.
func (b *RedisBroker) Publish(ctx context.Context, channel string, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("broker is closed")
	}
	b.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, channel, data).Err()
}

// Subscribe starts listening for events on the specified channel.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, fmt.Errorf("broker is closed")
	}
	b.mu.RUnlock()

	sub := b.client.Subscribe(ctx, channel)

	// Confirm the subscription before handing out the channel so callers
	// cannot publish into a not-yet-established subscription.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	events := make(chan Event, 100)

	go func() {
		defer close(events)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("Relay event decode error: %v", err)
					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Type returns the broker implementation name.
func (b *RedisBroker) Type() string {
	return "redis"
}

// Close stops the broker. The underlying client is owned by the caller and
// is not closed here.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
