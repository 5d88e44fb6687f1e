package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
)

// CloudStorage implements ObjectStore on Google Cloud Storage.
type CloudStorage struct {
	client *storage.Client
}

func NewCloudStorage(client *storage.Client) *CloudStorage {
	return &CloudStorage{client: client}
}

func (s *CloudStorage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	w := s.client.Bucket(bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=0"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write object %s/%s: %w", bucket, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s/%s: %w", bucket, path, err)
	}

	return nil
}

func (s *CloudStorage) SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (SignedURL, error) {
	expires := time.Now().Add(ttl)

	url, err := s.client.Bucket(bucket).SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("failed to sign %s/%s: %w", bucket, path, err)
	}

	return SignedURL{URL: url, ExpiresAt: expires}, nil
}

// Remove deletes the given objects, tolerating already-missing ones.
// The first real error is returned after all paths were attempted.
func (s *CloudStorage) Remove(ctx context.Context, bucket string, paths []string) error {
	var firstErr error
	for _, path := range paths {
		err := s.client.Bucket(bucket).Object(path).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete %s/%s: %w", bucket, path, err)
			}
		}
	}

	return firstErr
}

// PublicURL composes the permanent URL for an object in a public bucket.
func (s *CloudStorage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, path)
}
