package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/pipeline"
	"github.com/Lllllllleong/ocrflow/internal/services"
	"github.com/Lllllllleong/ocrflow/mocks"
)

type intakeMocks struct {
	reader  *mocks.MockObjectReader
	store   *mocks.MockStatusStore
	runner  *mocks.MockDocumentRunner
	sink    *mocks.MockTranscriptSink
	trigger *mocks.MockWorkflowTrigger
}

func newIntakeMocks() *intakeMocks {
	return &intakeMocks{
		reader:  new(mocks.MockObjectReader),
		store:   new(mocks.MockStatusStore),
		runner:  new(mocks.MockDocumentRunner),
		sink:    new(mocks.MockTranscriptSink),
		trigger: new(mocks.MockWorkflowTrigger),
	}
}

func (m *intakeMocks) function() *services.IntakeFunction {
	return services.NewIntakeFunction(m.reader, m.store, m.runner, m.sink, m.trigger)
}

func (m *intakeMocks) assertExpectations(t *testing.T) {
	m.reader.AssertExpectations(t)
	m.store.AssertExpectations(t)
	m.runner.AssertExpectations(t)
	m.sink.AssertExpectations(t)
	m.trigger.AssertExpectations(t)
}

var uploadEvent = services.GCSEvent{Bucket: "uploads", Name: "in/scan.pdf"}

func statusIs(state models.DocumentState) any {
	return mock.MatchedBy(func(fields map[string]any) bool {
		return fields["status"] == state
	})
}

func TestIntakeFunction_Process_Success(t *testing.T) {
	m := newIntakeMocks()
	doc := models.NewDocument("doc-1", "in/scan.pdf", models.FormatPDF, 2, []byte("%PDF"))
	opts := pipeline.DefaultOptions()
	transcript := partialTranscript()

	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.AnythingOfType("string")).Return(nil, false, nil)
	m.store.On("Create", mock.Anything, mock.MatchedBy(func(rec *models.DocumentRecord) bool {
		return rec.Status == models.StateReceived &&
			rec.SourceURI == "gs://uploads/in/scan.pdf" &&
			rec.OriginalFilename == "in/scan.pdf" &&
			len(rec.FileHash) == 64
	})).Return("doc-1", nil)
	m.runner.On("Prepare", pipeline.Input{
		DocumentID:  "doc-1",
		Name:        "in/scan.pdf",
		Content:     []byte("%PDF"),
		ContentType: "application/pdf",
	}).Return(doc, opts, nil)
	m.store.On("Update", mock.Anything, "doc-1", map[string]any{"status": models.StateLoaded, "pageCount": 2}).Return(nil).Once()
	m.store.On("Update", mock.Anything, "doc-1", map[string]any{"status": models.StateProcessing}).Return(nil).Once()
	m.runner.On("Run", mock.Anything, doc, opts).Return(transcript, nil)
	m.sink.On("Save", mock.Anything, transcript, pipeline.Render(transcript)).Return("gs://transcripts/doc-1/transcript.json", nil)
	m.store.On("Update", mock.Anything, "doc-1", map[string]any{
		"status":        models.StatePartiallyCompleted,
		"failedPages":   []int{1},
		"transcriptUri": "gs://transcripts/doc-1/transcript.json",
	}).Return(nil).Once()
	m.trigger.On("Trigger", mock.Anything, models.WorkflowPayload{
		DocumentID:    "doc-1",
		Status:        models.StatePartiallyCompleted,
		PageCount:     2,
		FailedPages:   []int{1},
		TranscriptURI: "gs://transcripts/doc-1/transcript.json",
	}).Return("executions/123", nil)
	m.store.On("Update", mock.Anything, "doc-1", map[string]any{"workflowExecutionId": "executions/123"}).Return(nil).Once()

	err := m.function().Process(context.Background(), uploadEvent)

	assert.NoError(t, err)
	m.assertExpectations(t)
}

func TestIntakeFunction_Process_Duplicate(t *testing.T) {
	m := newIntakeMocks()
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(&models.DocumentRecord{
		ID:                  "existing",
		Status:              models.StateCompleted,
		WorkflowExecutionID: "executions/1",
	}, true, nil)

	err := m.function().Process(context.Background(), uploadEvent)

	assert.NoError(t, err)
	m.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	m.trigger.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
	m.runner.AssertNotCalled(t, "Prepare", mock.Anything)
	m.assertExpectations(t)
}

func TestIntakeFunction_Process_ReadFailure(t *testing.T) {
	m := newIntakeMocks()
	readErr := errors.New("object not found")
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return(nil, "", readErr)

	err := m.function().Process(context.Background(), uploadEvent)

	assert.ErrorIs(t, err, readErr)
	m.store.AssertNotCalled(t, "FindByHash", mock.Anything, mock.Anything)
}

func TestIntakeFunction_Process_LoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		loadErr error
		wantErr bool
	}{
		{"corrupt", fmt.Errorf("%w: document has no pages", models.ErrCorruptDocument), false},
		{"unsupported", fmt.Errorf("%w: text/plain", models.ErrUnsupportedFormat), false},
		{"invalid options", fmt.Errorf("%w: dpi 0", pipeline.ErrInvalidOptions), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newIntakeMocks()
			m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("junk"), "", nil)
			m.store.On("FindByHash", mock.Anything, mock.Anything).Return(nil, false, nil)
			m.store.On("Create", mock.Anything, mock.Anything).Return("doc-1", nil)
			m.runner.On("Prepare", mock.Anything).Return(nil, pipeline.Options{}, tt.loadErr)
			m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateFailed)).Return(nil).Once()

			err := m.function().Process(context.Background(), uploadEvent)

			if tt.wantErr {
				assert.ErrorIs(t, err, tt.loadErr)
			} else {
				assert.NoError(t, err)
			}
			m.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
			m.assertExpectations(t)
		})
	}
}

func TestIntakeFunction_Process_RunInterrupted(t *testing.T) {
	m := newIntakeMocks()
	doc := models.NewDocument("doc-1", "in/scan.pdf", models.FormatPDF, 1, []byte("%PDF"))
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(nil, false, nil)
	m.store.On("Create", mock.Anything, mock.Anything).Return("doc-1", nil)
	m.runner.On("Prepare", mock.Anything).Return(doc, pipeline.Options{}, nil)
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateLoaded)).Return(nil).Once()
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateProcessing)).Return(nil).Once()
	m.runner.On("Run", mock.Anything, doc, pipeline.Options{}).
		Return(&models.Transcript{DocumentID: "doc-1", Status: models.StateFailed}, fmt.Errorf("%w: stopped", models.ErrCancelled))
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateFailed)).Return(nil).Once()

	err := m.function().Process(context.Background(), uploadEvent)

	assert.ErrorIs(t, err, models.ErrCancelled)
	m.sink.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestIntakeFunction_Process_SinkFailure(t *testing.T) {
	m := newIntakeMocks()
	doc := models.NewDocument("doc-1", "in/scan.pdf", models.FormatPDF, 2, []byte("%PDF"))
	saveErr := errors.New("bucket unavailable")
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(nil, false, nil)
	m.store.On("Create", mock.Anything, mock.Anything).Return("doc-1", nil)
	m.runner.On("Prepare", mock.Anything).Return(doc, pipeline.Options{}, nil)
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateLoaded)).Return(nil).Once()
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateProcessing)).Return(nil).Once()
	m.runner.On("Run", mock.Anything, doc, pipeline.Options{}).Return(partialTranscript(), nil)
	m.sink.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("", saveErr)
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateFailed)).Return(nil).Once()

	err := m.function().Process(context.Background(), uploadEvent)

	assert.ErrorIs(t, err, saveErr)
	m.trigger.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestIntakeFunction_Process_WithoutSinkOrWorkflow(t *testing.T) {
	m := newIntakeMocks()
	doc := models.NewDocument("doc-1", "in/scan.pdf", models.FormatPDF, 1, []byte("%PDF"))
	transcript := &models.Transcript{
		DocumentID: "doc-1",
		Status:     models.StateCompleted,
		Pages:      []models.RecognitionResult{{PageIndex: 0, Text: "hello", Status: models.PageStatusOK}},
	}
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(nil, false, nil)
	m.store.On("Create", mock.Anything, mock.Anything).Return("doc-1", nil)
	m.runner.On("Prepare", mock.Anything).Return(doc, pipeline.Options{}, nil)
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateLoaded)).Return(nil).Once()
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateProcessing)).Return(nil).Once()
	m.runner.On("Run", mock.Anything, doc, pipeline.Options{}).Return(transcript, nil)
	m.store.On("Update", mock.Anything, "doc-1", map[string]any{
		"status":      models.StateCompleted,
		"failedPages": []int(nil),
	}).Return(nil).Once()

	f := services.NewIntakeFunction(m.reader, m.store, m.runner, nil, nil)
	err := f.Process(context.Background(), uploadEvent)

	assert.NoError(t, err)
	m.reader.AssertExpectations(t)
	m.store.AssertExpectations(t)
	m.runner.AssertExpectations(t)
}

func TestIntakeFunction_Process_TriggerFailure(t *testing.T) {
	m := newIntakeMocks()
	doc := models.NewDocument("doc-1", "in/scan.pdf", models.FormatPDF, 2, []byte("%PDF"))
	triggerErr := errors.New("permission denied")
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(nil, false, nil)
	m.store.On("Create", mock.Anything, mock.Anything).Return("doc-1", nil)
	m.runner.On("Prepare", mock.Anything).Return(doc, pipeline.Options{}, nil)
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateLoaded)).Return(nil).Once()
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StateProcessing)).Return(nil).Once()
	m.runner.On("Run", mock.Anything, doc, pipeline.Options{}).Return(partialTranscript(), nil)
	m.sink.On("Save", mock.Anything, mock.Anything, mock.Anything).Return("s3://transcripts/doc-1/transcript.json", nil)
	m.store.On("Update", mock.Anything, "doc-1", statusIs(models.StatePartiallyCompleted)).Return(nil).Once()
	m.trigger.On("Trigger", mock.Anything, mock.Anything).Return("", triggerErr)
	m.store.On("Update", mock.Anything, "doc-1", map[string]any{
		"errorDetails": "failed to trigger workflow: permission denied",
	}).Return(nil).Once()

	err := m.function().Process(context.Background(), uploadEvent)

	assert.ErrorIs(t, err, triggerErr)
	m.assertExpectations(t)
}

func TestIntakeFunction_Process_RedeliveryReprocessesFailedRecord(t *testing.T) {
	m := newIntakeMocks()
	doc := models.NewDocument("doc-7", "in/scan.pdf", models.FormatPDF, 1, []byte("%PDF"))
	transcript := &models.Transcript{
		DocumentID: "doc-7",
		Status:     models.StateCompleted,
		Pages:      []models.RecognitionResult{{PageIndex: 0, Text: "hello", Status: models.PageStatusOK}},
	}
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(&models.DocumentRecord{
		ID:           "doc-7",
		Status:       models.StateFailed,
		ErrorDetails: "failed to save transcript: bucket unavailable",
	}, true, nil)
	m.store.On("Update", mock.Anything, "doc-7", map[string]any{
		"status":           models.StateReceived,
		"errorDetails":     "",
		"originalFilename": "in/scan.pdf",
		"sourceUri":        "gs://uploads/in/scan.pdf",
	}).Return(nil).Once()
	m.runner.On("Prepare", mock.MatchedBy(func(in pipeline.Input) bool {
		return in.DocumentID == "doc-7"
	})).Return(doc, pipeline.Options{}, nil)
	m.store.On("Update", mock.Anything, "doc-7", statusIs(models.StateLoaded)).Return(nil).Once()
	m.store.On("Update", mock.Anything, "doc-7", statusIs(models.StateProcessing)).Return(nil).Once()
	m.runner.On("Run", mock.Anything, doc, pipeline.Options{}).Return(transcript, nil)
	m.store.On("Update", mock.Anything, "doc-7", statusIs(models.StateCompleted)).Return(nil).Once()

	f := services.NewIntakeFunction(m.reader, m.store, m.runner, nil, nil)
	err := f.Process(context.Background(), uploadEvent)

	assert.NoError(t, err)
	m.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.reader.AssertExpectations(t)
	m.store.AssertExpectations(t)
	m.runner.AssertExpectations(t)
}

func TestIntakeFunction_Process_RedeliverySkipsInFlightRecord(t *testing.T) {
	for _, state := range []models.DocumentState{models.StateReceived, models.StateLoaded, models.StateProcessing} {
		t.Run(string(state), func(t *testing.T) {
			m := newIntakeMocks()
			m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
			m.store.On("FindByHash", mock.Anything, mock.Anything).Return(&models.DocumentRecord{
				ID:        "doc-7",
				Status:    state,
				UpdatedAt: time.Now().Add(-time.Minute),
			}, true, nil)

			err := m.function().Process(context.Background(), uploadEvent)

			assert.NoError(t, err)
			m.store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
			m.runner.AssertNotCalled(t, "Prepare", mock.Anything)
			m.assertExpectations(t)
		})
	}
}

func TestIntakeFunction_Process_RedeliveryTakesOverStaleRecord(t *testing.T) {
	m := newIntakeMocks()
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("junk"), "", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(&models.DocumentRecord{
		ID:        "doc-7",
		Status:    models.StateProcessing,
		UpdatedAt: time.Now().Add(-3 * time.Hour),
	}, true, nil)
	m.store.On("Update", mock.Anything, "doc-7", statusIs(models.StateReceived)).Return(nil).Once()
	m.runner.On("Prepare", mock.Anything).Return(nil, pipeline.Options{}, fmt.Errorf("%w: document has no pages", models.ErrCorruptDocument))
	m.store.On("Update", mock.Anything, "doc-7", statusIs(models.StateFailed)).Return(nil).Once()

	err := m.function().Process(context.Background(), uploadEvent)

	assert.NoError(t, err)
	m.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestIntakeFunction_Process_RedeliveryRetriesMissingHandOff(t *testing.T) {
	m := newIntakeMocks()
	m.reader.On("ReadObject", mock.Anything, "uploads", "in/scan.pdf").Return([]byte("%PDF"), "application/pdf", nil)
	m.store.On("FindByHash", mock.Anything, mock.Anything).Return(&models.DocumentRecord{
		ID:            "doc-7",
		Status:        models.StatePartiallyCompleted,
		PageCount:     2,
		FailedPages:   []int{1},
		TranscriptURI: "gs://transcripts/doc-7/transcript.json",
		ErrorDetails:  "failed to trigger workflow: permission denied",
	}, true, nil)
	m.trigger.On("Trigger", mock.Anything, models.WorkflowPayload{
		DocumentID:    "doc-7",
		Status:        models.StatePartiallyCompleted,
		PageCount:     2,
		FailedPages:   []int{1},
		TranscriptURI: "gs://transcripts/doc-7/transcript.json",
	}).Return("executions/456", nil)
	m.store.On("Update", mock.Anything, "doc-7", map[string]any{"workflowExecutionId": "executions/456"}).Return(nil).Once()

	err := m.function().Process(context.Background(), uploadEvent)

	assert.NoError(t, err)
	m.runner.AssertNotCalled(t, "Prepare", mock.Anything)
	m.sink.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}
