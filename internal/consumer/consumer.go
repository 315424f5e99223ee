// Package consumer implements the batch side of the dispatch layer: it
// receives groups of queued scrape requests, runs the orchestrator once
// per message, and translates each outcome into ack or redelivery.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/metrics"
	"github.com/bedatse/cf-web-scrapper-worker/internal/queue"
	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

// Runner is the slice of the orchestrator the consumer drives. The
// consumer owns session acquisition itself so one session is amortized
// across the whole batch instead of per message.
type Runner interface {
	ScrapeWithSession(ctx context.Context, sess scraper.Session, req scraper.Request) (scraper.Outcome, error)
	ReleaseSession(ctx context.Context, sess scraper.Session)
}

// Config controls batch processing behavior.
type Config struct {
	// ReacquireOnSessionLoss provisions a replacement session when a
	// message fails because the shared session's connection died,
	// instead of letting one bad session poison the rest of the batch.
	ReacquireOnSessionLoss bool
}

// Consumer handles one batch of queued scrape requests per call.
type Consumer struct {
	pool   scraper.SessionPool
	runner Runner
	cfg    Config
	logger *zap.Logger
}

// New constructs a Consumer.
func New(pool scraper.SessionPool, runner Runner, cfg Config, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		pool:   pool,
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// HandleBatch acquires one session for the whole batch, runs each
// message through the orchestrator on it, acks successes and nacks
// failures, and releases the session once after the batch completes
// regardless of per-message outcomes. If no session can be acquired at
// all, every message is nacked for redelivery.
func (c *Consumer) HandleBatch(ctx context.Context, msgs []queue.Message) {
	if len(msgs) == 0 {
		return
	}

	sess, err := scraper.AcquireSession(ctx, c.pool, c.logger)
	if err != nil {
		c.logger.Error("no session for batch, redelivering all messages",
			zap.Int("batch_size", len(msgs)),
			zap.Error(err),
		)
		for _, msg := range msgs {
			c.nack(msg)
		}
		return
	}
	defer func() {
		c.runner.ReleaseSession(ctx, sess)
	}()

	for i, msg := range msgs {
		req, err := decodeRequest(msg.Data())
		if err != nil {
			// A malformed payload can never succeed; redelivering it
			// would loop until the dead-letter policy kicks in. Ack and
			// drop it here instead.
			c.logger.Error("dropping malformed scrape message", zap.Error(err))
			msg.Ack()
			metrics.ObserveBatchMessage("dropped")
			continue
		}

		_, err = c.runner.ScrapeWithSession(ctx, sess, req)
		if err == nil {
			msg.Ack()
			metrics.ObserveBatchMessage("acked")
			continue
		}

		c.nack(msg)
		c.logger.Warn("scrape message redelivered",
			zap.String("url", req.URL),
			zap.String("stage", scraper.Stage(err)),
			zap.Error(err),
		)

		if c.cfg.ReacquireOnSessionLoss && errors.Is(err, scraper.ErrSessionLost) && i < len(msgs)-1 {
			c.runner.ReleaseSession(ctx, sess)
			sess, err = scraper.AcquireSession(ctx, c.pool, c.logger)
			if err != nil {
				c.logger.Error("replacement session unavailable, redelivering rest of batch",
					zap.Int("remaining", len(msgs)-i-1),
					zap.Error(err),
				)
				for _, rest := range msgs[i+1:] {
					c.nack(rest)
				}
				// Nothing left to release; neutralize the deferred release.
				sess = noopSession{}
				return
			}
		}
	}
}

func (c *Consumer) nack(msg queue.Message) {
	msg.Nack()
	metrics.ObserveBatchMessage("nacked")
}

func decodeRequest(data []byte) (scraper.Request, error) {
	var req scraper.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return scraper.Request{}, fmt.Errorf("decode scrape request: %w", err)
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return scraper.Request{}, err
	}
	return req, nil
}

type noopSession struct{}

func (noopSession) ID() string { return "" }

func (noopSession) Release(_ context.Context) error { return nil }
