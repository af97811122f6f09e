package broker

import "context"

// Event kinds relayed between coordinator instances.
const (
	KindDelta = "delta"
	KindDrift = "drift"
)

// Event is one invalidation outcome relayed to peer instances. Delta events
// carry the routes and the timestamp the origin stamped them with; drift
// events carry only the drift timestamp. OriginID lets an instance ignore
// its own events when the relay loops them back.
type Event struct {
	OriginID  string   `json:"origin_id"`
	Kind      string   `json:"kind"`
	ProjectID string   `json:"project_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	Paths     []string `json:"paths,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	DriftTime int64    `json:"drift_time"`
}

// MessageBroker relays invalidation events between coordinator instances.
// The relay is optional and best-effort: local broadcasts never wait on it.
type MessageBroker interface {
	// Publish sends an event to the specified channel.
	Publish(ctx context.Context, channel string, event Event) error
	// Subscribe starts listening for events on the specified channel.
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)
	// Type returns the broker implementation name, for logs and metrics.
	Type() string
	// Close cleans up resources.
	Close() error
}
