package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Lllllllleong/ocrflow/internal/models"
)

// MockStatusStore is a mock implementation of services.StatusStore.
type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) FindByHash(ctx context.Context, fileHash string) (*models.DocumentRecord, bool, error) {
	args := m.Called(ctx, fileHash)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.DocumentRecord), args.Bool(1), args.Error(2)
}

func (m *MockStatusStore) Create(ctx context.Context, rec *models.DocumentRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *MockStatusStore) Update(ctx context.Context, id string, fields map[string]any) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}
