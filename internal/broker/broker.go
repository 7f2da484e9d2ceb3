// Package broker is the pub/sub fan-out between server processes. One topic
// per room; delivery is at-least-once, fire-and-forget from the publisher's
// side.
package broker

import "context"

// Broker publishes to and subscribes on named topics.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns once the subscription is established, so a publish
	// that happens after it returns is observed.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription delivers payloads for one topic until closed. The channel is
// closed when the subscription ends.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
