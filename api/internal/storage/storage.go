// Package storage reads input images from and writes extraction documents to object storage.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

// Store is the object storage used by the extractor. Buckets and keys follow S3 semantics.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}
