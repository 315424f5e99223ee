package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubPublisher implements Publisher for Google Cloud Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher creates a Pub/Sub client and verifies the topic
// exists so misconfiguration fails at startup. Authentication uses
// Google Cloud's Application Default Credentials.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	return &PubSubPublisher{
		client: client,
		topic:  topic,
	}, nil
}

// Publish sends the payload and blocks until the server acknowledges
// it, so the caller's 202 means the message is actually enqueued.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte) error {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish scrape request: %w", err)
	}
	return nil
}

// Close stops the topic's publish goroutines and closes the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// SubscriberConfig controls batch assembly for the Pub/Sub consumer.
type SubscriberConfig struct {
	ProjectID      string
	SubscriptionID string
	// BatchSize caps how many messages one batch (and thus one browser
	// session) handles.
	BatchSize int
	// FlushInterval bounds how long a partial batch waits for more
	// messages before being dispatched.
	FlushInterval time.Duration
}

// Subscriber pulls queued scrape requests and dispatches them to a
// BatchHandler in groups. Ack/nack of each message stays with the
// handler; redelivery of nacked messages is the subscription's own
// backoff policy.
type Subscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	cfg    SubscriberConfig
	logger *zap.Logger
}

// NewSubscriber creates a Pub/Sub client and verifies the subscription
// exists.
func NewSubscriber(ctx context.Context, cfg SubscriberConfig, logger *zap.Logger) (*Subscriber, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscription(cfg.SubscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after subscription check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub subscription %q: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after subscription check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", cfg.SubscriptionID, cfg.ProjectID)
	}
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.BatchSize

	return &Subscriber{
		client: client,
		sub:    sub,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run blocks, receiving messages and dispatching batches until the
// context finishes.
func (s *Subscriber) Run(ctx context.Context, handler BatchHandler) error {
	msgCh := make(chan Message)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.batchLoop(ctx, msgCh, handler)
	}()

	err := s.sub.Receive(ctx, func(cctx context.Context, m *pubsub.Message) {
		select {
		case msgCh <- &pubsubMessage{m: m}:
		case <-cctx.Done():
			m.Nack()
		}
	})
	// Receive returns only after all outstanding callbacks finish, so
	// nothing writes to msgCh past this point.
	close(msgCh)
	wg.Wait()

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

func (s *Subscriber) batchLoop(ctx context.Context, msgCh <-chan Message, handler BatchHandler) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Message, 0, s.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.logger.Debug("dispatching scrape batch", zap.Int("size", len(batch)))
		handler.HandleBatch(ctx, batch)
		batch = make([]Message, 0, s.cfg.BatchSize)
	}

	for {
		select {
		case m, ok := <-msgCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, m)
			if len(batch) >= s.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close closes the underlying client connection.
func (s *Subscriber) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

type pubsubMessage struct {
	m *pubsub.Message
}

func (p *pubsubMessage) Data() []byte { return p.m.Data }
func (p *pubsubMessage) Ack()         { p.m.Ack() }
func (p *pubsubMessage) Nack()        { p.m.Nack() }
