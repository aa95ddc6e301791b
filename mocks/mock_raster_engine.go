package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/raster"
)

// MockRasterEngine is a mock implementation of raster.Engine.
type MockRasterEngine struct {
	mock.Mock
}

func (m *MockRasterEngine) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockRasterEngine) Rasterize(ctx context.Context, req raster.Request) (*models.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page), args.Error(1)
}
