// Package queue defines the interfaces for the scrape request queue.
// This abstraction keeps the application independent of a specific
// transport (GCP Pub/Sub in production, an in-memory queue for
// development). Retry, backoff, and dead-lettering belong to the queue
// service itself; consumers only acknowledge or signal redelivery.
package queue

import (
	"context"
)

// Message is one queued scrape request. Exactly one of Ack or Nack must
// be called per delivery: Ack consumes the message, Nack hands it back
// to the transport's own redelivery policy.
type Message interface {
	Data() []byte
	Ack()
	Nack()
}

// BatchHandler processes a group of queued messages and performs
// per-message ack/nack signaling.
type BatchHandler interface {
	HandleBatch(ctx context.Context, msgs []Message)
}

// Publisher enqueues scrape requests.
type Publisher interface {
	// Publish hands the payload to the queue. It returns once the
	// transport has accepted the message.
	Publish(ctx context.Context, data []byte) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOpPublisher is a publisher that performs no operations.
type NoOpPublisher struct{}

// Publish for NoOpPublisher does nothing and returns nil.
func (n *NoOpPublisher) Publish(_ context.Context, _ []byte) error { return nil }

// Close for NoOpPublisher does nothing and returns nil.
func (n *NoOpPublisher) Close() error { return nil }
