package ports

import (
	"context"
	"time"
)

// EventPublisher is the outbound domain-event publish port.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error
}

// Locker serializes work on one key across processes. Acquire fails with
// domain.ErrOrderBusy when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
