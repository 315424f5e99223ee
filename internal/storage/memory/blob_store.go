// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"sync"
)

// Object is one stored artifact with its content type tag.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore keeps artifacts in a map, keyed by object name.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]Object),
	}
}

// Save stores a copy of the artifact bytes under the object name.
func (s *BlobStore) Save(_ context.Context, objectName string, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = Object{
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return nil
}

// Get returns a stored object, if present.
func (s *BlobStore) Get(objectName string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectName]
	return obj, ok
}

// Len reports the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
