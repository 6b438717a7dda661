package objectstore

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS is the Google Cloud Storage-backed Backend, grounded in the
// original implementation's storage/gcs.rs. This client is named but not
// grounded in the example pack itself (no repo exercises a real GCS
// client); see DESIGN.md.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS builds a Backend writing to the named bucket using application
// default credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(key)
}

func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrMiss
		}
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func (g *GCS) Put(ctx context.Context, key string, body []byte) error {
	w := g.object(key).NewWriter(ctx)
	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (g *GCS) DeletePrefix(ctx context.Context, prefix string) error {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := g.object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return err
		}
	}
}

func (g *GCS) Probe(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	return err
}

func (g *GCS) IsAvailabilityError(err error) bool {
	return err != nil && !errors.Is(err, ErrMiss) && !errors.Is(err, storage.ErrObjectNotExist)
}
