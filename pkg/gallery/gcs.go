package gallery

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// GCSStore reads the gallery from a Cloud Storage bucket.
type GCSStore struct {
	bucket  string
	service *storage.Service
}

// NewGCSStore creates a store for bucket. Credentials come from opts or
// the application default credentials.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	opts = append([]option.ClientOption{option.WithScopes(storage.DevstorageReadOnlyScope)}, opts...)
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &GCSStore{bucket: bucket, service: svc}, nil
}

// List returns the objects under prefix.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objs []Object
	call := g.service.Objects.List(g.bucket).Prefix(prefix).Fields("nextPageToken", "items(name,size)")
	err := call.Pages(ctx, func(page *storage.Objects) error {
		for _, item := range page.Items {
			objs = append(objs, Object{Key: item.Name, Size: int64(item.Size)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list gs://%s/%s: %w", g.bucket, prefix, err)
	}
	return objs, nil
}

// Download streams the object at key into w.
func (g *GCSStore) Download(ctx context.Context, key string, w io.Writer) error {
	resp, err := g.service.Objects.Get(g.bucket, key).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("download gs://%s/%s: %w", g.bucket, key, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download gs://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

var _ Store = (*GCSStore)(nil)
