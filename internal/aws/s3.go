// Package aws adapts AWS services for transcript delivery.
package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Lllllllleong/ocrflow/internal/config"
	"github.com/Lllllllleong/ocrflow/internal/models"
)

// Uploader is the subset of *manager.Uploader used by S3Sink.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink writes transcripts to an S3 (or S3-compatible) bucket as
// <documentId>/transcript.json and <documentId>/transcript.txt.
type S3Sink struct {
	uploader Uploader
	bucket   string
}

// NewS3Sink creates a sink from cfg. A custom endpoint switches to path-style
// addressing for S3-compatible stores.
func NewS3Sink(ctx context.Context, cfg *config.S3Config) (*S3Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return NewS3SinkWithUploader(manager.NewUploader(client), cfg.Bucket), nil
}

func NewS3SinkWithUploader(u Uploader, bucket string) *S3Sink {
	return &S3Sink{uploader: u, bucket: bucket}
}

// Save uploads the transcript and its rendered text and returns the s3:// URI
// of the JSON object.
func (s *S3Sink) Save(ctx context.Context, t *models.Transcript, text string) (string, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	jsonKey := t.DocumentID + "/transcript.json"
	if err := s.upload(ctx, jsonKey, "application/json", bytes.NewReader(data)); err != nil {
		return "", err
	}
	if err := s.upload(ctx, t.DocumentID+"/transcript.txt", "text/plain; charset=utf-8", bytes.NewReader([]byte(text))); err != nil {
		return "", err
	}
	uri := fmt.Sprintf("s3://%s/%s", s.bucket, jsonKey)
	slog.Info("Transcript saved to S3.", "documentId", t.DocumentID, "uri", uri)
	return uri, nil
}

func (s *S3Sink) upload(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return nil
}
