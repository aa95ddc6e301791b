package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// MockTranscriptSink is a mock implementation of services.TranscriptSink.
type MockTranscriptSink struct {
	mock.Mock
}

func (m *MockTranscriptSink) Save(ctx context.Context, t *models.Transcript, text string) (string, error) {
	args := m.Called(ctx, t, text)
	return args.String(0), args.Error(1)
}
