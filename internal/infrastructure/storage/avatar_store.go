// Package storage uploads account avatars to Google Cloud Storage.
package storage

import (
	"context"
	"io"

	"cloud.google.com/go/storage"

	"github.com/oksasatya/account-service/pkg/helpers"
)

type AvatarStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewAvatarStore uploads into bucket. baseURL overrides the public URL prefix
// (for a CDN in front of the bucket); empty means storage.googleapis.com.
func NewAvatarStore(client *storage.Client, bucket, baseURL string) *AvatarStore {
	return &AvatarStore{client: client, bucket: bucket, baseURL: baseURL}
}

// Upload streams r into bucket/objectPath and returns the public URL.
func (s *AvatarStore) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	wc := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "public, max-age=86400"
	wc.ChunkSize = 0 // single request, avatars are small
	if _, err := io.Copy(wc, r); err != nil {
		_ = wc.Close()
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", err
	}
	return s.URL(objectPath), nil
}

func (s *AvatarStore) URL(objectPath string) string {
	return helpers.PublicURL(s.baseURL, s.bucket, objectPath)
}
