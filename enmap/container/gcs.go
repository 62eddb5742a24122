package container

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS is a Store backed by Google Cloud Storage.
type GCS struct {
	client *storage.Client
}

// NewGCS creates a storage client. Pass option.WithoutAuthentication() for
// public buckets.
func NewGCS(ctx context.Context, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("container: create gcs client: %w", err)
	}
	return &GCS{client: client}, nil
}

// Scheme implements Store.
func (g *GCS) Scheme() string {
	return "gs"
}

// List iterates all objects below prefix.
func (g *GCS) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var objects []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		objects = append(objects, Object{Key: attrs.Name, Size: attrs.Size})
	}
	return objects, nil
}

// Fetch streams one object into w.
func (g *GCS) Fetch(ctx context.Context, bucket, key string, w Writer) (int64, error) {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.Copy(w, r)
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
