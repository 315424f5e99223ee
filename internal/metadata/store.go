// Package metadata persists the page metadata record for each scraped
// URL. The record is keyed by canonical URL; repeated scrapes of the
// same URL update the record in place via a single atomic upsert.
package metadata

import (
	"context"
	"time"

	"github.com/bedatse/cf-web-scrapper-worker/internal/scraper"
)

// PageRecord mirrors one row of the pages table. The markdown and
// embedding timestamps are owned by downstream collaborators and are
// never written by this service; they appear here only for reads.
type PageRecord struct {
	URL                string     `db:"url"`
	StorageKey         string     `db:"storage_key"`
	Language           string     `db:"language"`
	PageCrawledAt      time.Time  `db:"page_crawled_at"`
	MarkdownCreatedAt  *time.Time `db:"markdown_created_at"`
	EmbeddingCreatedAt *time.Time `db:"embedding_created_at"`
}

// Provider is the metadata store surface used by the orchestrator.
type Provider interface {
	scraper.MetadataStore

	// Close terminates the store connection and releases any resources.
	Close() error
}

// NoOpProvider is a metadata provider that performs no operations. It
// is useful for running the scraper without a database.
type NoOpProvider struct{}

// UpsertPage for NoOpProvider does nothing and returns no error.
func (n *NoOpProvider) UpsertPage(_ context.Context, _ string, _ scraper.StorageKey, _ string, _ time.Time) error {
	return nil
}

// Close for NoOpProvider does nothing and returns no error.
func (n *NoOpProvider) Close() error { return nil }
