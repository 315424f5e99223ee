// Package app initializes and holds long-lived application services, acting as
// a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/api"
	"github.com/bedatse/cf-web-scrapper-worker/internal/browser"
	"github.com/bedatse/cf-web-scrapper-worker/internal/clock/system"
	"github.com/bedatse/cf-web-scrapper-worker/internal/config"
	"github.com/bedatse/cf-web-scrapper-worker/internal/consumer"
	"github.com/bedatse/cf-web-scrapper-worker/internal/logging"
	"github.com/bedatse/cf-web-scrapper-worker/internal/metadata"
	"github.com/bedatse/cf-web-scrapper-worker/internal/metrics"
	"github.com/bedatse/cf-web-scrapper-worker/internal/queue"
	queuemem "github.com/bedatse/cf-web-scrapper-worker/internal/queue/memory"
	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
	"github.com/bedatse/cf-web-scrapper-worker/internal/storage"
	storagemem "github.com/bedatse/cf-web-scrapper-worker/internal/storage/memory"
)

// App holds the shared, long-lived services of the scrapper. It is built
// once at startup from the loaded config and passed to the commands that
// need it.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	scraper   *scraper.Scraper
	pool      *browser.Pool
	server    *api.Server
	publisher queue.Publisher
	consumer  *consumer.Consumer

	// runConsumer drains the configured queue transport, dispatching
	// batches to the consumer until ctx is canceled. Nil when the queue
	// provider is noop.
	runConsumer func(ctx context.Context) error

	closers []func() error
}

// New assembles every service from the config, failing fast when any
// backing dependency cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	blobs, err := a.buildStorage(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := a.buildMetadata(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pool, err = browser.NewPool(browser.PoolConfig{
		Endpoint: cfg.Browser.Endpoint,
		Token:    cfg.Browser.Token,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	nav := browser.NewNavigator(browser.NavigatorConfig{
		NavigationTimeout: cfg.NavTimeout(),
		IdleCeiling:       cfg.IdleCeiling(),
		UserAgent:         cfg.Browser.UserAgent,
	}, logger)

	a.scraper = scraper.New(a.pool, nav, blobs, meta, system.Clock{}, logger)

	a.consumer = consumer.New(a.pool, a.scraper, consumer.Config{
		ReacquireOnSessionLoss: cfg.Queue.ReacquireOnSessionLoss,
	}, logger)

	if err := a.buildQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.server = api.NewServer(a.scraper, a.publisher, api.Config{
		BearerToken:    cfg.Auth.BearerToken,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger)

	logger.Info("application services initialized",
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.String("metadata_provider", cfg.Metadata.Provider),
		zap.String("queue_provider", cfg.Queue.Provider))
	return a, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Server returns the HTTP surface.
func (a *App) Server() *api.Server { return a.server }

// RunConsumer drains the queue until ctx is canceled. It returns
// immediately when the queue provider has no consuming side.
func (a *App) RunConsumer(ctx context.Context) error {
	if a.runConsumer == nil {
		<-ctx.Done()
		return nil
	}
	return a.runConsumer(ctx)
}

func (a *App) buildStorage(ctx context.Context) (scraper.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		gcs, err := storage.NewGCSProvider(ctx, a.cfg.Storage.GCSBucket, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize storage: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		return gcs, nil
	case "memory":
		return storagemem.NewBlobStore(), nil
	case "noop":
		a.logger.Info("using no-op storage provider, artifacts will be discarded")
		return &storage.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", a.cfg.Storage.Provider)
	}
}

func (a *App) buildMetadata(ctx context.Context) (metadata.Provider, error) {
	switch a.cfg.Metadata.Provider {
	case "postgres":
		store, err := metadata.NewPostgresStore(ctx, metadata.PostgresConfig{
			DSN:      a.cfg.Metadata.DSN,
			Table:    a.cfg.Metadata.Table,
			MaxConns: a.cfg.Metadata.MaxOpenConns,
			MinConns: a.cfg.Metadata.MinOpenConns,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize metadata store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "noop":
		a.logger.Info("using no-op metadata provider, page records will be discarded")
		return &metadata.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown metadata provider %q", a.cfg.Metadata.Provider)
	}
}

func (a *App) buildQueue(ctx context.Context) error {
	qc := a.cfg.Queue
	switch qc.Provider {
	case "pubsub":
		pub, err := queue.NewPubSubPublisher(ctx, qc.ProjectID, qc.TopicID, a.logger)
		if err != nil {
			return fmt.Errorf("initialize queue publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)

		sub, err := queue.NewSubscriber(ctx, queue.SubscriberConfig{
			ProjectID:      qc.ProjectID,
			SubscriptionID: qc.SubscriptionID,
			BatchSize:      qc.BatchSize,
			FlushInterval:  a.cfg.FlushInterval(),
		}, a.logger)
		if err != nil {
			return fmt.Errorf("initialize queue subscriber: %w", err)
		}
		a.closers = append(a.closers, sub.Close)
		a.runConsumer = func(ctx context.Context) error {
			return sub.Run(ctx, a.consumer)
		}
	case "memory":
		q := queuemem.NewQueue(qc.MemoryCapacity)
		a.publisher = q
		a.closers = append(a.closers, q.Close)
		a.runConsumer = func(ctx context.Context) error {
			q.Run(ctx, a.consumer, qc.BatchSize, a.cfg.FlushInterval())
			return nil
		}
	case "noop":
		a.logger.Info("using no-op queue provider, enqueued requests will be dropped")
		a.publisher = &queue.NoOpPublisher{}
	default:
		return fmt.Errorf("unknown queue provider %q", qc.Provider)
	}
	return nil
}

// Close shuts down all services in reverse initialization order and
// flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
