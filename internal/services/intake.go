package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"

	"github.com/Lllllllleong/ocrflow/internal/config"
	"github.com/Lllllllleong/ocrflow/internal/gcp"
	"github.com/Lllllllleong/ocrflow/internal/logging"
	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/pipeline"
)

// staleAfter is how long a record may sit in a non-terminal state before a
// redelivered event takes it over. It outlasts the longest function timeout.
const staleAfter = 2 * time.Hour

// GCSEvent is the payload of a Cloud Storage object-finalized event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// IntakeFunction recognizes documents uploaded to a bucket and records their
// progress in the status store.
type IntakeFunction struct {
	reader  ObjectReader
	store   StatusStore
	runner  DocumentRunner
	sink    TranscriptSink  // nil when transcripts are not persisted
	trigger WorkflowTrigger // nil when no workflow is configured
}

// NewIntake creates an IntakeFunction from the environment.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if cfg.GCP.ProjectID == "" {
		return nil, fmt.Errorf("OCRFLOW_GCP_PROJECT_ID environment variable must be set")
	}

	p, _, err := NewPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.GCP.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	sink, err := NewTranscriptSink(ctx, cfg, storageClient)
	if err != nil {
		return nil, err
	}

	var trigger WorkflowTrigger
	if cfg.GCP.WorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		trigger = gcp.NewWorkflowTrigger(executionsClient, cfg.GCP.ProjectID, cfg.GCP.WorkflowLocation, cfg.GCP.WorkflowID)
	}

	slog.Info("Upload recognizer initialized.", "collection", cfg.GCP.Collection, "sink", cfg.Sink.Provider, "workflowId", cfg.GCP.WorkflowID)
	return NewIntakeFunction(
		gcp.NewStorageReader(storageClient),
		gcp.NewStatusStore(firestoreClient, cfg.GCP.Collection),
		p,
		sink,
		trigger,
	), nil
}

func NewIntakeFunction(reader ObjectReader, store StatusStore, runner DocumentRunner, sink TranscriptSink, trigger WorkflowTrigger) *IntakeFunction {
	return &IntakeFunction{
		reader:  reader,
		store:   store,
		runner:  runner,
		sink:    sink,
		trigger: trigger,
	}
}

// Process handles one uploaded object. Content already recognized is skipped,
// and content still in flight elsewhere is left alone. A record left FAILED, or
// stuck mid-run for longer than staleAfter, is reprocessed under its existing
// ID. Documents that cannot be loaded end the invocation without an error,
// since retrying cannot help.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	data, objectType, err := f.reader.ReadObject(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download source document", "error", err)
		return err
	}

	fileHash := hashContent(data)
	logCtx = logCtx.With("fileHash", fileHash)

	existing, found, err := f.store.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}

	sourceURI := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	var docID string
	if found {
		logCtx = logCtx.With("existingDocId", existing.ID, "existingStatus", existing.Status)
		switch {
		case existing.Status == models.StateCompleted || existing.Status == models.StatePartiallyCompleted:
			if f.trigger != nil && existing.WorkflowExecutionID == "" {
				logCtx.Info("Duplicate file was recognized but never handed off. Retrying the workflow trigger.")
				return f.handOff(ctx, logCtx.With("documentId", existing.ID), models.WorkflowPayload{
					DocumentID:    existing.ID,
					Status:        existing.Status,
					PageCount:     existing.PageCount,
					FailedPages:   existing.FailedPages,
					TranscriptURI: existing.TranscriptURI,
				})
			}
			logCtx.Info("Duplicate file detected. Skipping.")
			return nil
		case existing.Status != models.StateFailed && time.Since(existing.UpdatedAt) < staleAfter:
			logCtx.Info("Duplicate file is still being processed. Skipping.")
			return nil
		}

		docID = existing.ID
		if err := f.store.Update(ctx, docID, map[string]any{
			"status":           models.StateReceived,
			"errorDetails":     "",
			"originalFilename": e.Name,
			"sourceUri":        sourceURI,
		}); err != nil {
			logCtx.Error("Failed to reset document record", "error", err)
			return err
		}
		logCtx.Info("Reprocessing document whose earlier attempt did not finish.")
	} else {
		docID, err = f.store.Create(ctx, &models.DocumentRecord{
			FileHash:         fileHash,
			OriginalFilename: e.Name,
			SourceURI:        sourceURI,
			Status:           models.StateReceived,
		})
		if err != nil {
			logCtx.Error("Failed to create document record", "error", err)
			return err
		}
		logCtx.Info("Created document record.")
	}
	logCtx = logCtx.With("documentId", docID)

	contentType := e.ContentType
	if contentType == "" {
		contentType = objectType
	}
	doc, opts, err := f.runner.Prepare(pipeline.Input{
		DocumentID:  docID,
		Name:        e.Name,
		Content:     data,
		ContentType: contentType,
	})
	if err != nil {
		failErr := f.handleError(ctx, logCtx, docID, "failed to load document", err)
		if errors.Is(err, models.ErrUnsupportedFormat) || errors.Is(err, models.ErrCorruptDocument) {
			return nil
		}
		return failErr
	}

	if err := f.store.Update(ctx, docID, map[string]any{
		"status":    models.StateLoaded,
		"pageCount": doc.PageCount(),
	}); err != nil {
		return f.handleError(ctx, logCtx, docID, "failed to update status to LOADED", err)
	}
	if err := f.store.Update(ctx, docID, map[string]any{"status": models.StateProcessing}); err != nil {
		return f.handleError(ctx, logCtx, docID, "failed to update status to PROCESSING", err)
	}
	logCtx.Info("Document loaded.", "pageCount", doc.PageCount())

	transcript, err := f.runner.Run(ctx, doc, opts)
	if err != nil {
		// The FAILED record is picked up again when the event is redelivered.
		return f.handleError(ctx, logCtx, docID, "recognition was interrupted", err)
	}

	fields := map[string]any{
		"status":      transcript.Status,
		"failedPages": transcript.FailedPages(),
	}
	var transcriptURI string
	if f.sink != nil {
		transcriptURI, err = f.sink.Save(ctx, transcript, pipeline.Render(transcript))
		if err != nil {
			return f.handleError(ctx, logCtx, docID, "failed to save transcript", err)
		}
		fields["transcriptUri"] = transcriptURI
	}
	if err := f.store.Update(ctx, docID, fields); err != nil {
		logCtx.Error("Failed to record terminal status", "error", err)
		return fmt.Errorf("failed to record terminal status: %w", err)
	}
	logCtx.Info("Document recognized.", "status", transcript.Status, "failedPages", transcript.FailedPages(), "transcriptUri", transcriptURI)

	if f.trigger == nil {
		return nil
	}
	return f.handOff(ctx, logCtx, models.WorkflowPayload{
		DocumentID:    docID,
		Status:        transcript.Status,
		PageCount:     len(transcript.Pages),
		FailedPages:   transcript.FailedPages(),
		TranscriptURI: transcriptURI,
	})
}

// handOff triggers the workflow for a recognized document. A failed trigger is
// returned so the event is redelivered; the record keeps its terminal status
// and no execution ID, which is what the retry looks for.
func (f *IntakeFunction) handOff(ctx context.Context, logCtx *slog.Logger, payload models.WorkflowPayload) error {
	executionID, err := f.trigger.Trigger(ctx, payload)
	if err != nil {
		logCtx.Error("Failed to trigger workflow", "error", err)
		if uerr := f.store.Update(ctx, payload.DocumentID, map[string]any{"errorDetails": fmt.Sprintf("failed to trigger workflow: %v", err)}); uerr != nil {
			logCtx.Error("Failed to record workflow error.", "updateError", uerr)
		}
		return err
	}
	if err := f.store.Update(ctx, payload.DocumentID, map[string]any{"workflowExecutionId": executionID}); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "error", err)
	}
	logCtx.Info("Hand-off to workflow complete.", "executionId", executionID)
	return nil
}

func (f *IntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, docID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.store.Update(ctx, docID, map[string]any{
		"status":       models.StateFailed,
		"errorDetails": fullError,
	}); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
