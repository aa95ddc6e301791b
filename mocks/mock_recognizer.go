package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/pipeline"
)

// MockRecognizer is a mock implementation of services.Recognizer.
type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Recognize(ctx context.Context, in pipeline.Input) (*models.Transcript, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transcript), args.Error(1)
}

// MockDocumentRunner is a mock implementation of services.DocumentRunner.
type MockDocumentRunner struct {
	mock.Mock
}

func (m *MockDocumentRunner) Prepare(in pipeline.Input) (*models.Document, pipeline.Options, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, pipeline.Options{}, args.Error(2)
	}
	return args.Get(0).(*models.Document), args.Get(1).(pipeline.Options), args.Error(2)
}

func (m *MockDocumentRunner) Run(ctx context.Context, doc *models.Document, opts pipeline.Options) (*models.Transcript, error) {
	args := m.Called(ctx, doc, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transcript), args.Error(1)
}
