// Package archive keeps optional copies of what the bridge received and did:
// raw webhook bodies in Cloud Storage and one audit row per ledger import in
// BigQuery. Both are best-effort; the bridge works without them.
package archive

import (
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// PayloadStore is the concrete GCS archive for raw webhook bodies.
type PayloadStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewPayloadStore creates a GCS-backed payload store. It assumes Application
// Default Credentials unless opts say otherwise.
func NewPayloadStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*PayloadStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewPayloadStore: create storage client: %w", err)
	}
	return &PayloadStore{client: client, bucket: bucket, prefix: "webhooks"}, nil
}

// Close closes the storage client.
func (s *PayloadStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ObjectName returns the object path for a delivery:
// <prefix>/YYYY/MM/DD/<deliveryID>.json, dated in UTC.
func ObjectName(prefix, deliveryID string, receivedAt time.Time) string {
	return path.Join(prefix, receivedAt.UTC().Format("2006/01/02"), deliveryID+".json")
}

// Put writes body under the delivery's object name and returns its gs:// URI.
func (s *PayloadStore) Put(ctx context.Context, deliveryID string, receivedAt time.Time, body []byte) (string, error) {
	objectName := ObjectName(s.prefix, deliveryID, receivedAt)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{"delivery_id": deliveryID}

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Put: write %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Put: finalize %s: %w", objectName, err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}
