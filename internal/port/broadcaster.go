package port

import "context"

// Broadcaster fans the post-commit item state out to live subscribers.
type Broadcaster interface {
	// Publish pushes the current snapshot of the item to every active
	// listener. A no-op when nobody is subscribed; never blocks on a
	// slow consumer.
	Publish(ctx context.Context, itemID string) error
}
