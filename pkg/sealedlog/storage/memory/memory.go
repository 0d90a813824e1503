package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// Backend is an in-memory implementation of the sealedlog.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory storage backend
func New() sealedlog.BlobStore {
	return &Backend{
		objects: make(map[string][]byte),
	}
}

// Upload stores content directly
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectKey] = data
	return nil
}

// Download returns a reader over a copy of the stored content
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, sealedlog.ErrObjectNotFound
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return sealedlog.ErrObjectNotFound
	}

	delete(b.objects, objectKey)
	return nil
}

// Corrupt overwrites a stored object in place. Tests use it to simulate
// storage that no longer returns what was written.
func (b *Backend) Corrupt(objectKey string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectKey] = data
}
