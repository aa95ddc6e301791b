package services

import (
	"context"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/pipeline"
)

// Recognizer runs the recognition pipeline on a raw document.
type Recognizer interface {
	Recognize(ctx context.Context, in pipeline.Input) (*models.Transcript, error)
}

// DocumentRunner loads a document and runs it as separate steps so progress
// can be recorded in between.
type DocumentRunner interface {
	Prepare(in pipeline.Input) (*models.Document, pipeline.Options, error)
	Run(ctx context.Context, doc *models.Document, opts pipeline.Options) (*models.Transcript, error)
}

// ObjectReader fetches an uploaded document.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error)
}

// StatusStore persists DocumentRecords.
type StatusStore interface {
	FindByHash(ctx context.Context, fileHash string) (*models.DocumentRecord, bool, error)
	Create(ctx context.Context, rec *models.DocumentRecord) (string, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

// TranscriptSink stores a finished transcript and returns where it was written.
type TranscriptSink interface {
	Save(ctx context.Context, t *models.Transcript, text string) (string, error)
}

// WorkflowTrigger hands a finished document to the downstream workflow.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, payload models.WorkflowPayload) (string, error)
}
