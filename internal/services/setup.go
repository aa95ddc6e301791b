package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"golang.org/x/time/rate"

	"github.com/Lllllllleong/ocrflow/internal/aws"
	"github.com/Lllllllleong/ocrflow/internal/config"
	"github.com/Lllllllleong/ocrflow/internal/gcp"
	"github.com/Lllllllleong/ocrflow/internal/loader"
	"github.com/Lllllllleong/ocrflow/internal/ocr"
	"github.com/Lllllllleong/ocrflow/internal/ocr/vertex"
	"github.com/Lllllllleong/ocrflow/internal/pipeline"
	"github.com/Lllllllleong/ocrflow/internal/raster"
	"github.com/Lllllllleong/ocrflow/internal/scratch"
)

// NewPipeline assembles the recognition pipeline described by cfg. The returned
// close function releases any client the engines hold.
func NewPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func() error, error) {
	rasterizer, err := raster.New(cfg.Raster.Engines, cfg.Raster.PdftoppmPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure rasterization: %w", err)
	}

	recognizer, closeFn, err := newOCREngine(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var provider scratch.Provider
	switch cfg.Scratch.Provider {
	case "memory":
		provider = scratch.NewMemoryProvider(cfg.Scratch.MaxBytes)
	default:
		provider = scratch.NewFSProvider(cfg.Scratch.Dir)
	}

	p := pipeline.New(loader.New(cfg.Pipeline.MaxPages), rasterizer, recognizer, provider, cfg.Pipeline.Options())
	slog.Info("Recognition pipeline configured.",
		"rasterizer", rasterizer.Name(),
		"ocrEngine", recognizer.Name(),
		"scratch", cfg.Scratch.Provider,
	)
	return p, closeFn, nil
}

func newOCREngine(ctx context.Context, cfg *config.Config) (ocr.Engine, func() error, error) {
	var (
		engine  ocr.Engine
		closeFn = func() error { return nil }
	)
	switch cfg.OCR.Engine {
	case "vertex":
		vertexClient, err := gcp.NewVertexClient(ctx, cfg.GCP.ProjectID, cfg.GCP.Region, cfg.OCR.VertexModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		engine = vertex.New(vertexClient.RecognizerModel)
		closeFn = vertexClient.Close
	default:
		e, err := ocr.Lookup(cfg.OCR.Engine)
		if err != nil {
			return nil, nil, err
		}
		engine = e
	}

	if cfg.OCR.RateLimit > 0 {
		burst := cfg.OCR.Burst
		if burst < 1 {
			burst = 1
		}
		engine = ocr.NewLimited(rate.NewLimiter(rate.Limit(cfg.OCR.RateLimit), burst), engine)
	}
	return engine, closeFn, nil
}

// NewTranscriptSink returns the sink selected by cfg, or nil when transcripts
// are not persisted.
func NewTranscriptSink(ctx context.Context, cfg *config.Config, storageClient *storage.Client) (TranscriptSink, error) {
	switch cfg.Sink.Provider {
	case "gcs":
		return gcp.NewBucketSink(storageClient, cfg.GCP.OutputBucket), nil
	case "s3":
		sink, err := aws.NewS3Sink(ctx, &cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 sink: %w", err)
		}
		return sink, nil
	default:
		return nil, nil
	}
}
