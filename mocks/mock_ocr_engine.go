package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Lllllllleong/ocrflow/internal/ocr"
)

// MockOCREngine is a mock implementation of ocr.Engine.
type MockOCREngine struct {
	mock.Mock
}

func (m *MockOCREngine) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockOCREngine) Recognize(ctx context.Context, in ocr.Input) (*ocr.Output, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ocr.Output), args.Error(1)
}
