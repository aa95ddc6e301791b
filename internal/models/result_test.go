package models_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

func page(idx int, status models.PageStatus) models.RecognitionResult {
	return models.RecognitionResult{PageIndex: idx, Status: status}
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		name  string
		pages []models.RecognitionResult
		want  models.DocumentState
	}{
		{"all ok", []models.RecognitionResult{page(0, models.PageStatusOK), page(1, models.PageStatusOK)}, models.StateCompleted},
		{"low confidence counts as success", []models.RecognitionResult{page(0, models.PageStatusOK), page(1, models.PageStatusLowConfidence)}, models.StateCompleted},
		{"mixed", []models.RecognitionResult{page(0, models.PageStatusOK), page(1, models.PageStatusFailed)}, models.StatePartiallyCompleted},
		{"all failed", []models.RecognitionResult{page(0, models.PageStatusFailed), page(1, models.PageStatusFailed)}, models.StateFailed},
		{"no pages", nil, models.StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.StateOf(tt.pages))
		})
	}
}

func TestCauseOf(t *testing.T) {
	assert.Equal(t, models.CauseNone, models.CauseOf(nil))
	assert.Equal(t, models.CauseRasterizationFailed,
		models.CauseOf(fmt.Errorf("%w: page 1: %w", models.ErrRasterizationFailed, errors.New("bad jpeg"))))
	assert.Equal(t, models.CauseRecognitionFailed,
		models.CauseOf(fmt.Errorf("%w: engine crashed", models.ErrRecognitionFailed)))
	assert.Equal(t, models.CauseTimeout,
		models.CauseOf(fmt.Errorf("%w: %w", models.ErrTimeout, models.ErrRecognitionFailed)))
	assert.Equal(t, models.CauseCancelled, models.CauseOf(models.ErrCancelled))
	assert.Equal(t, models.CauseCancelled, models.CauseOf(context.Canceled))
}

func TestFailedResult(t *testing.T) {
	err := fmt.Errorf("%w: page 2: truncated", models.ErrRasterizationFailed)
	res := models.FailedResult(2, err)

	assert.Equal(t, 2, res.PageIndex)
	assert.Equal(t, models.PageStatusFailed, res.Status)
	assert.Equal(t, models.CauseRasterizationFailed, res.Cause)
	assert.Contains(t, res.Error, "truncated")
	assert.False(t, res.Succeeded())
}

func TestTranscript_FailedPages(t *testing.T) {
	tr := &models.Transcript{Pages: []models.RecognitionResult{
		page(0, models.PageStatusOK),
		page(1, models.PageStatusFailed),
		page(2, models.PageStatusLowConfidence),
		page(3, models.PageStatusFailed),
	}}

	assert.Equal(t, []int{1, 3}, tr.FailedPages())
	assert.Equal(t, 2, tr.SucceededPages())
}

func TestNewDocument(t *testing.T) {
	doc := models.NewDocument("doc-1", "scan.pdf", models.FormatPDF, 3, []byte("%PDF"))

	assert.Equal(t, 3, doc.PageCount())
	for i, p := range doc.Pages {
		assert.Equal(t, i, p.Index)
	}
	assert.Equal(t, []byte("%PDF"), doc.Content())
	assert.False(t, doc.Format.IsImage())
	assert.True(t, models.FormatTIFF.IsImage())
}
