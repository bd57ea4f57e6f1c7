package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Name string
	Size int64
}

// ObjectStore is the byte-level persistence backend the entity stores sit
// on. Keys are slash-separated relative paths. The default backend is a
// directory on local disk; S3 is available for bucket-backed deployments.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)

	PutObject(ctx context.Context, key string, data io.Reader) error

	DeleteObject(ctx context.Context, key string) error

	ListObjects(ctx context.Context, prefix string) ([]Object, error)

	ObjectExists(ctx context.Context, key string) (bool, error)
}
