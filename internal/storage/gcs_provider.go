package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSProvider implements the storage.Provider interface for Google Cloud Storage.
type GCSProvider struct {
	client     *storage.Client
	bucketName string
	logger     *zap.Logger
}

// NewGCSProvider initializes a new GCS client and verifies the bucket is
// reachable so misconfiguration fails at startup, not on the first scrape.
// Authentication is handled via Google's Application Default Credentials.
func NewGCSProvider(ctx context.Context, bucketName string, logger *zap.Logger) (*GCSProvider, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	bkt := client.Bucket(bucketName)
	if _, err := bkt.Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucketName, err)
	}

	return &GCSProvider{
		client:     client,
		bucketName: bucketName,
		logger:     logger,
	}, nil
}

// Save uploads the artifact bytes to the named object, tagging the
// object's content type.
func (g *GCSProvider) Save(ctx context.Context, objectName string, contentType string, data []byte) error {
	wc := g.client.Bucket(g.bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		// Still close the writer to clean up; the write error is primary.
		if closeErr := wc.Close(); closeErr != nil {
			g.logger.Warn("failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write GCS object %s: %w", objectName, err)
	}

	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for object %s: %w", objectName, err)
	}

	return nil
}

// Close releases the underlying client.
func (g *GCSProvider) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
