// Package pubsub provides a generic publish/subscribe event broker.
package pubsub

import (
	"context"
	"time"
)

// EventType labels the kind of change an event describes.
type EventType string

const (
	// PublishedEvent signals that a new record was added to the registry.
	PublishedEvent EventType = "published"
)

// Event is a broadcast notification with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Publisher is the write side of a broker.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Subscriber is the read side of a broker. A subscription ends when the
// context is cancelled or the returned unsubscribe function is called,
// whichever comes first.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) (<-chan Event[T], func())
}
