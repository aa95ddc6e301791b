package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockObjectReader is a mock implementation of services.ObjectReader.
type MockObjectReader struct {
	mock.Mock
}

func (m *MockObjectReader) ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error) {
	args := m.Called(ctx, bucket, object)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}
