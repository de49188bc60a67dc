package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GCSStore keeps archives in Google Cloud Storage. Recognition calls cannot
// reference GCS objects, so stages send image bytes when this backend is used.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore uses Application Default Credentials.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

func (g *GCSStore) Backend() string { return "gcs" }

func (g *GCSStore) Close() error {
	return g.client.Close()
}

func (g *GCSStore) reader(ctx context.Context, bucket, key string) (*storage.Reader, error) {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return r, nil
}

func (g *GCSStore) DownloadFile(ctx context.Context, bucket, key, localPath string) error {
	r, err := g.reader(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("read GCS object: %w", err)
	}
	return f.Close()
}

func (g *GCSStore) UploadFile(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", localPath, err)
	}
	defer f.Close()

	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (g *GCSStore) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := g.reader(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}
