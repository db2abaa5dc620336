// Package mocks provides mock implementations of core interfaces for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/caseflow/caseflow/pkg/models"
)

// MockExecutionStore is a mock implementation of store.ExecutionStore.
type MockExecutionStore struct {
	mock.Mock
}

func (m *MockExecutionStore) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionStore) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionStore) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionStore) ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionStore) AppendEvent(ctx context.Context, event *models.ExecutionEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockExecutionStore) ListEvents(ctx context.Context, executionID string) ([]*models.ExecutionEvent, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionEvent), args.Error(1)
}

func (m *MockExecutionStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockExecutionStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
