// Package storage defines the interfaces for a blob storage provider.
// This abstraction allows the application to be independent of a specific
// storage implementation (e.g., Google Cloud Storage or an in-memory store).
package storage

import (
	"context"
)

// Provider is the blob store surface the scrape pipeline writes
// artifacts through. Objects are written whole; the content type is
// tagged on the object so downstream consumers can content-negotiate
// without re-deriving it from bytes.
type Provider interface {
	Save(ctx context.Context, objectName string, contentType string, data []byte) error
}

// NoOpProvider is a storage provider that performs no operations. It is
// useful for dry runs where pages are rendered but artifacts discarded.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ string, _ []byte) error {
	return nil
}
