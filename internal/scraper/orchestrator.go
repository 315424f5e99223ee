package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bedatse/cf-web-scrapper-worker/internal/metrics"
)

// Artifact content types, tagged on every write so downstream consumers
// can content-negotiate without sniffing bytes.
const (
	htmlContentType       = "text/html; charset=utf-8"
	screenshotContentType = "image/png"

	htmlSuffix       = ".html"
	screenshotSuffix = ".png"
)

// Scraper runs one end-to-end scrape per call: derive key, acquire a
// session, navigate and extract, store artifacts, record metadata. It
// never retries internally; one call is one attempt against one
// session, and the session is released on every exit path.
type Scraper struct {
	pool   SessionPool
	nav    Navigator
	blobs  BlobStore
	meta   MetadataStore
	clock  Clock
	logger *zap.Logger
}

// New constructs a Scraper.
func New(
	pool SessionPool,
	nav Navigator,
	blobs BlobStore,
	meta MetadataStore,
	clock Clock,
	logger *zap.Logger,
) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		pool:   pool,
		nav:    nav,
		blobs:  blobs,
		meta:   meta,
		clock:  clock,
		logger: logger,
	}
}

// Scrape acquires its own session, runs the attempt, and releases the
// session regardless of where the attempt fails.
func (s *Scraper) Scrape(ctx context.Context, req Request) (Outcome, error) {
	sess, err := AcquireSession(ctx, s.pool, s.logger)
	if err != nil {
		metrics.ObserveScrape(string(req.Mode), "session_unavailable")
		return Outcome{}, err
	}
	defer s.ReleaseSession(ctx, sess)

	return s.ScrapeWithSession(ctx, sess, req)
}

// ScrapeWithSession runs the attempt on a caller-owned session. The
// batch consumer uses this to amortize one session across a whole
// batch; ownership and release stay with the caller.
func (s *Scraper) ScrapeWithSession(ctx context.Context, sess Session, req Request) (Outcome, error) {
	start := s.clock.Now()

	canonical, host, err := CanonicalURL(req.URL)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	key := DeriveKey(host, canonical)

	content, err := s.nav.Fetch(ctx, sess, canonical, req.IdleWindow(), req.Mode)
	if err != nil {
		s.observeFailure(req, sess, err)
		return Outcome{}, err
	}

	if err := s.storeArtifacts(ctx, key, req.Mode, content); err != nil {
		s.observeFailure(req, sess, err)
		return Outcome{}, err
	}

	if err := s.meta.UpsertPage(ctx, canonical, key, req.Language, s.clock.Now()); err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrMetadataFailed, err)
		s.observeFailure(req, sess, wrapped)
		return Outcome{}, wrapped
	}

	metrics.ObserveScrape(string(req.Mode), "success")
	metrics.ObserveScrapeDuration(s.clock.Now().Sub(start))
	s.logger.Info("page scraped",
		zap.String("url", canonical),
		zap.String("storage_key", key.String()),
		zap.String("mode", string(req.Mode)),
		zap.String("session_id", sess.ID()),
	)
	return Outcome{Key: key, Title: content.Title}, nil
}

// ReleaseSession returns the session to the pool. Release runs even
// when the attempt's context is already canceled, since a leaked remote
// session stays leased until the pool times it out.
func (s *Scraper) ReleaseSession(ctx context.Context, sess Session) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := sess.Release(releaseCtx); err != nil {
		s.logger.Warn("session release failed",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
}

// storeArtifacts writes the extracted content under the derived key,
// HTML first in ALL mode. Any store failure aborts the attempt; an HTML
// artifact already written before a failed screenshot store is left in
// place and overwritten by the next successful scrape of the same URL.
func (s *Scraper) storeArtifacts(ctx context.Context, key StorageKey, mode Mode, content PageContent) error {
	if mode.WantsHTML() {
		if err := s.blobs.Save(ctx, key.String()+htmlSuffix, htmlContentType, content.HTML); err != nil {
			return fmt.Errorf("%w: html: %w", ErrStorageFailed, err)
		}
	}
	if mode.WantsScreenshot() {
		if err := s.blobs.Save(ctx, key.String()+screenshotSuffix, screenshotContentType, content.Screenshot); err != nil {
			return fmt.Errorf("%w: screenshot: %w", ErrStorageFailed, err)
		}
	}
	return nil
}

func (s *Scraper) observeFailure(req Request, sess Session, err error) {
	stage := Stage(err)
	metrics.ObserveScrape(string(req.Mode), stage)
	s.logger.Error("scrape attempt failed",
		zap.String("url", req.URL),
		zap.String("stage", stage),
		zap.String("session_id", sess.ID()),
		zap.Error(err),
	)
}
