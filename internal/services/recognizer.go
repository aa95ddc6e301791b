package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/ocrflow/internal/config"
	"github.com/Lllllllleong/ocrflow/internal/gcp"
	"github.com/Lllllllleong/ocrflow/internal/logging"
	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/pipeline"
)

// ErrInvalidRequest marks a request the caller must fix.
var ErrInvalidRequest = errors.New("invalid request")

// RecognizerFunction holds the dependencies for synchronous document recognition.
type RecognizerFunction struct {
	recognizer Recognizer
	reader     ObjectReader
}

// NewRecognizer creates a RecognizerFunction from the environment.
func NewRecognizer(ctx context.Context) (*RecognizerFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	p, _, err := NewPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	slog.Info("Document recognizer initialized.")
	return NewRecognizerFunction(p, gcp.NewStorageReader(storageClient)), nil
}

// NewRecognizerFunction wires a RecognizerFunction from its parts. reader may
// be nil, in which case gcsUri requests are rejected.
func NewRecognizerFunction(r Recognizer, reader ObjectReader) *RecognizerFunction {
	return &RecognizerFunction{recognizer: r, reader: reader}
}

// Process recognizes the document in req, given inline or by gcsUri.
func (f *RecognizerFunction) Process(ctx context.Context, req *models.RecognizeRequest) (*models.RecognizeResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "filename", req.Filename)

	content, contentType, name, err := f.resolveContent(ctx, req)
	if err != nil {
		logCtx.Warn("Rejected recognition request.", "error", err)
		return nil, err
	}
	logCtx.Info("Recognizing document.", "bytes", len(content), "contentType", contentType)

	transcript, err := f.recognizer.Recognize(ctx, pipeline.Input{
		DocumentID:  req.DocumentID,
		Name:        name,
		Content:     content,
		ContentType: contentType,
		Options:     req.Options,
	})
	if err != nil {
		logCtx.Error("Document recognition failed.", "error", err)
		return nil, err
	}

	return &models.RecognizeResponse{
		DocumentID:  transcript.DocumentID,
		Status:      transcript.Status,
		PageCount:   len(transcript.Pages),
		FailedPages: transcript.FailedPages(),
		Text:        pipeline.Render(transcript),
		Pages:       transcript.Pages,
	}, nil
}

func (f *RecognizerFunction) resolveContent(ctx context.Context, req *models.RecognizeRequest) ([]byte, string, string, error) {
	switch {
	case len(req.Content) > 0 && req.GCSUri != "":
		return nil, "", "", fmt.Errorf("%w: set either content or gcsUri, not both", ErrInvalidRequest)
	case len(req.Content) > 0:
		return req.Content, req.ContentType, req.Filename, nil
	case req.GCSUri == "":
		return nil, "", "", fmt.Errorf("%w: one of content or gcsUri is required", ErrInvalidRequest)
	case f.reader == nil:
		return nil, "", "", fmt.Errorf("%w: gcsUri is not supported by this deployment", ErrInvalidRequest)
	}

	bucket, object, err := gcp.ParseGCSURI(req.GCSUri)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	data, objectType, err := f.reader.ReadObject(ctx, bucket, object)
	if err != nil {
		return nil, "", "", err
	}
	contentType, name := req.ContentType, req.Filename
	if contentType == "" {
		contentType = objectType
	}
	if name == "" {
		name = object
	}
	return data, contentType, name, nil
}

// StatusCode maps a Process error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, pipeline.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrCorruptDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrCancelled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
