// Package memory provides a queue implementation for local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bedatse/cf-web-scrapper-worker/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations.
// Nacked messages are re-enqueued, which loosely imitates the managed
// transport's redelivery without any backoff.
type Queue struct {
	ch chan []byte

	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan []byte, capacity),
	}
}

// Publish pushes a payload into the queue or returns if the context ends.
func (q *Queue) Publish(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- append([]byte(nil), data...):
		return nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}

// Run consumes the queue until the context finishes, grouping messages
// into batches of at most batchSize and dispatching each batch to the
// handler. A partial batch is flushed after flushInterval.
func (q *Queue) Run(ctx context.Context, handler queue.BatchHandler, batchSize int, flushInterval time.Duration) {
	if batchSize <= 0 {
		batchSize = 10
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]queue.Message, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		handler.HandleBatch(ctx, batch)
		batch = make([]queue.Message, 0, batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case data, ok := <-q.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, &message{data: data, queue: q})
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type message struct {
	data  []byte
	queue *Queue
	once  sync.Once
}

func (m *message) Data() []byte { return m.data }

func (m *message) Ack() {
	m.once.Do(func() {})
}

func (m *message) Nack() {
	m.once.Do(func() {
		// Best effort redelivery; dropped if the queue is full or closed.
		m.queue.closeMu.Lock()
		defer m.queue.closeMu.Unlock()
		if m.queue.closed {
			return
		}
		select {
		case m.queue.ch <- m.data:
		default:
		}
	})
}
