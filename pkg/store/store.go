// Package store is the execution-store boundary: durable records of workflow
// executions and their append-only event logs. The executor reads and writes
// exclusively through this interface.
package store

import (
	"context"
	"errors"

	"github.com/caseflow/caseflow/pkg/models"
)

// Standard store error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates no execution exists for the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyExists indicates an execution with the same id was
	// already created.
	ErrExecutionAlreadyExists = errors.New("execution already exists")
)

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// ExecutionStore persists execution state and audit events. One execution
// record per run, one ordered event log per execution id.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error)

	AppendEvent(ctx context.Context, event *models.ExecutionEvent) error
	ListEvents(ctx context.Context, executionID string) ([]*models.ExecutionEvent, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
