package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockInvoker is a mock implementation of invoker.Invoker interface.
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, capability string, payload map[string]any) (map[string]any, error) {
	args := m.Called(ctx, capability, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}
