package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// uri must name a bucket and an object: %q", uri)
	}
	return bucket, object, nil
}

// StorageReader reads whole objects from Cloud Storage.
type StorageReader struct {
	client *storage.Client
}

func NewStorageReader(client *storage.Client) *StorageReader {
	return &StorageReader{client: client}
}

// ReadObject returns the object's content and content type.
func (r *StorageReader) ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error) {
	reader, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read GCS object gs://%s/%s: %w", bucket, object, err)
	}
	return data, reader.Attrs.ContentType, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already
// exist. An existing object is not an error: transcripts are idempotent per
// document ID.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// BucketSink stores transcripts in a GCS bucket as
// <documentId>/transcript.json and <documentId>/transcript.txt.
type BucketSink struct {
	bucket     *storage.BucketHandle
	name       string
	maxRetries int
	backoff    time.Duration
}

func NewBucketSink(client *storage.Client, bucket string) *BucketSink {
	return &BucketSink{
		bucket:     client.Bucket(bucket),
		name:       bucket,
		maxRetries: 4,
		backoff:    time.Second,
	}
}

// Save writes both objects and returns the gs:// URI of the JSON transcript.
func (s *BucketSink) Save(ctx context.Context, t *models.Transcript, text string) (string, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	jsonObject := t.DocumentID + "/transcript.json"
	if err := s.saveWithRetry(ctx, jsonObject, "application/json", data); err != nil {
		return "", err
	}
	if err := s.saveWithRetry(ctx, t.DocumentID+"/transcript.txt", "text/plain; charset=utf-8", []byte(text)); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.name, jsonObject), nil
}

func (s *BucketSink) saveWithRetry(ctx context.Context, object, contentType string, content []byte) error {
	backoff := s.backoff
	var lastErr error

	for i := 0; i < s.maxRetries; i++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()
			return SaveToGCSAtomically(writeCtx, s.bucket, object, contentType, content)
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", object,
			"attempt", i+1,
			"maxRetries", s.maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", object, lastErr)
}
