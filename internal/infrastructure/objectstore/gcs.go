// Package objectstore provides the uploaded-asset store backed by GCS.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"linkpress/internal/domain/deletion"
)

var _ deletion.ObjectStore = (*Store)(nil)

// Store wraps a GCS bucket holding link preview assets.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates an asset store for the given bucket. Credentials come
// from the environment unless an explicit option is passed.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Remove deletes the object at the store-relative path. Removing an
// absent object is a no-op, so retried cleanup passes are safe.
func (s *Store) Remove(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
