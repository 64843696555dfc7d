package helpers

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// NewGCSClient creates a Google Cloud Storage client. If credsPath is empty, ADC is used.
func NewGCSClient(ctx context.Context, credsPath string) (*storage.Client, error) {
	if credsPath == "" {
		return storage.NewClient(ctx)
	}
	return storage.NewClient(ctx, option.WithCredentialsFile(credsPath))
}

// PublicURL builds a public URL for an object (assuming public read access or signed URLs).
// An empty base uses storage.googleapis.com.
func PublicURL(base, bucket, objectPath string) string {
	if base == "" {
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectPath)
	}
	return strings.TrimRight(base, "/") + "/" + objectPath
}
