package compensation_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow/pkg/compensation"
	"github.com/caseflow/caseflow/pkg/events"
	"github.com/caseflow/caseflow/pkg/mocks"
	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/store"
	"github.com/caseflow/caseflow/pkg/store/file"
)

func seedExecution(t *testing.T, executionStore *file.Store, steps []*models.ExecutedStep) *models.WorkflowExecution {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:         "exec-test",
		WorkflowID: "wf",
		Status:     models.ExecutionStatusFailed,
		Context: models.ExecutionContext{
			Values: map[string]any{"order": "o-42"},
			Steps:  steps,
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, executionStore.CreateExecution(context.Background(), execution))

	return execution
}

func step(stageID, handler string) *models.ExecutedStep {
	return &models.ExecutedStep{
		StageID:             stageID,
		Capability:          stageID,
		CompensationHandler: handler,
		CompletedAt:         time.Now().UTC(),
	}
}

func TestCoordinator_RollbackReverseOrder(t *testing.T) {
	t.Parallel()

	executionStore := file.NewStore(t.TempDir())
	handlers := compensation.NewRegistry()

	var order []string

	recorder := compensation.HandlerFunc(func(_ context.Context, stageID string, execCtx models.ExecutionContext) error {
		order = append(order, stageID)

		assert.Equal(t, "o-42", execCtx.Values["order"], "handlers see the context snapshot")

		return nil
	})
	require.NoError(t, handlers.Register("undo", recorder))

	execution := seedExecution(t, executionStore, []*models.ExecutedStep{
		step("a", "undo"),
		step("b", "undo"),
		step("c", "undo"),
	})

	coordinator := compensation.NewCoordinator(slog.Default(), executionStore, handlers)

	invoked, err := coordinator.Rollback(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, invoked)
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestCoordinator_RollbackSkipsStepsWithoutHandler(t *testing.T) {
	t.Parallel()

	executionStore := file.NewStore(t.TempDir())
	handlers := compensation.NewRegistry()

	var order []string

	require.NoError(t, handlers.Register("undo", compensation.HandlerFunc(
		func(_ context.Context, stageID string, _ models.ExecutionContext) error {
			order = append(order, stageID)

			return nil
		})))

	execution := seedExecution(t, executionStore, []*models.ExecutedStep{
		step("a", "undo"),
		step("b", ""),             // no handler declared
		step("c", "unregistered"), // handler never registered
	})

	coordinator := compensation.NewCoordinator(slog.Default(), executionStore, handlers)

	invoked, err := coordinator.Rollback(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, invoked)
	assert.Equal(t, []string{"a"}, order)
}

func TestCoordinator_HandlerFailureDoesNotBlockRemaining(t *testing.T) {
	t.Parallel()

	executionStore := file.NewStore(t.TempDir())
	handlers := compensation.NewRegistry()

	var order []string

	require.NoError(t, handlers.Register("explodes", compensation.HandlerFunc(
		func(context.Context, string, models.ExecutionContext) error {
			return errors.New("downstream unreachable")
		})))
	require.NoError(t, handlers.Register("undo", compensation.HandlerFunc(
		func(_ context.Context, stageID string, _ models.ExecutionContext) error {
			order = append(order, stageID)

			return nil
		})))

	execution := seedExecution(t, executionStore, []*models.ExecutedStep{
		step("a", "undo"),
		step("b", "explodes"),
	})

	coordinator := compensation.NewCoordinator(slog.Default(), executionStore, handlers)

	invoked, err := coordinator.Rollback(context.Background(), execution.ID)
	require.NoError(t, err, "handler failures are recorded, not escalated")

	assert.Equal(t, 2, invoked)
	assert.Equal(t, []string{"a"}, order, "the failing step's successor still compensates")

	recorded, err := executionStore.ListEvents(context.Background(), execution.ID)
	require.NoError(t, err)

	var types []string
	for _, ev := range recorded {
		types = append(types, ev.Type)
	}

	assert.Contains(t, types, string(events.CompensationFailedEvent))
	assert.Contains(t, types, string(events.StageCompensatedEvent))
}

func TestCoordinator_RollbackUnknownExecution(t *testing.T) {
	t.Parallel()

	executionStore := file.NewStore(t.TempDir())
	coordinator := compensation.NewCoordinator(slog.Default(), executionStore, compensation.NewRegistry())

	_, err := coordinator.Rollback(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, store.IsExecutionNotFound(err))
}

func TestCoordinator_EventLogFailureDoesNotBlockHandlers(t *testing.T) {
	t.Parallel()

	execution := &models.WorkflowExecution{
		ID:         "exec-test",
		WorkflowID: "wf",
		Status:     models.ExecutionStatusFailed,
		Context: models.ExecutionContext{
			Values: map[string]any{"order": "o-42"},
			Steps:  []*models.ExecutedStep{step("a", "undo-a"), step("b", "undo-b")},
		},
	}

	executionStore := &mocks.MockExecutionStore{}
	executionStore.On("GetExecution", mock.Anything, "exec-test").Return(execution, nil)
	executionStore.On("AppendEvent", mock.Anything, mock.Anything).Return(errors.New("event log unavailable"))

	handlers := compensation.NewRegistry()

	var invoked []string

	undo := compensation.HandlerFunc(func(_ context.Context, stageID string, _ models.ExecutionContext) error {
		invoked = append(invoked, stageID)

		return nil
	})
	require.NoError(t, handlers.Register("undo-a", undo))
	require.NoError(t, handlers.Register("undo-b", undo))

	coordinator := compensation.NewCoordinator(slog.Default(), executionStore, handlers)

	n, err := coordinator.Rollback(context.Background(), "exec-test")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b", "a"}, invoked)
	executionStore.AssertExpectations(t)
}
