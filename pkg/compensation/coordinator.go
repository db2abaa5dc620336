// Package compensation unwinds partially completed workflow executions:
// saga-style compensating actions applied in reverse completion order,
// best-effort, never transactional.
package compensation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow/caseflow/pkg/events"
	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/store"
)

// Handler reverses the effect of one completed stage. Handlers must be
// idempotent and safe to invoke even when the original action only partially
// completed.
type Handler interface {
	Compensate(ctx context.Context, stageID string, execCtx models.ExecutionContext) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, stageID string, execCtx models.ExecutionContext) error

func (f HandlerFunc) Compensate(ctx context.Context, stageID string, execCtx models.ExecutionContext) error {
	return f(ctx, stageID, execCtx)
}

// Registry holds compensation handlers by the identifier stages reference.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(id string, handler Handler) error {
	if id == "" {
		return fmt.Errorf("compensation handler id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("compensation handler %q already registered", id)
	}

	r.handlers[id] = handler

	return nil
}

func (r *Registry) Lookup(id string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[id]

	return handler, ok
}

// Coordinator applies compensation over an execution's completed steps.
type Coordinator struct {
	logger   *slog.Logger
	store    store.ExecutionStore
	handlers *Registry
}

func NewCoordinator(logger *slog.Logger, executionStore store.ExecutionStore, handlers *Registry) *Coordinator {
	return &Coordinator{
		logger:   logger.With("module", "compensation"),
		store:    executionStore,
		handlers: handlers,
	}
}

// Rollback reads the execution's step ledger and invokes each step's
// compensation handler in reverse completion order against a snapshot of the
// execution context. A handler failure is logged and recorded but never
// blocks the remaining steps. Returns the number of handlers invoked.
func (c *Coordinator) Rollback(ctx context.Context, executionID string) (int, error) {
	execution, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load execution %s for rollback: %w", executionID, err)
	}

	logger := c.logger.With("execution_id", executionID, "workflow_id", execution.WorkflowID)
	logger.InfoContext(ctx, "Starting compensation", "completed_steps", len(execution.Context.Steps))

	c.appendEvent(ctx, logger, executionID, events.CompensationStartedEvent, "", nil)

	// Context snapshot at the time compensation begins; handlers all see
	// the same view regardless of invocation order.
	snapshot := execution.Context

	invoked := 0

	for i := len(execution.Context.Steps) - 1; i >= 0; i-- {
		step := execution.Context.Steps[i]
		if step.CompensationHandler == "" {
			continue
		}

		handler, ok := c.handlers.Lookup(step.CompensationHandler)
		if !ok {
			logger.WarnContext(ctx, "No compensation handler registered, skipping",
				"stage_id", step.StageID, "handler", step.CompensationHandler)

			continue
		}

		invoked++

		if err := handler.Compensate(ctx, step.StageID, snapshot); err != nil {
			logger.ErrorContext(ctx, "Compensation handler failed",
				"stage_id", step.StageID, "handler", step.CompensationHandler, "error", err)

			c.appendEvent(ctx, logger, executionID, events.CompensationFailedEvent, step.StageID,
				map[string]any{"handler": step.CompensationHandler, "error": err.Error()})

			continue
		}

		logger.InfoContext(ctx, "Stage compensated",
			"stage_id", step.StageID, "handler", step.CompensationHandler)

		c.appendEvent(ctx, logger, executionID, events.StageCompensatedEvent, step.StageID,
			map[string]any{"handler": step.CompensationHandler})
	}

	return invoked, nil
}

func (c *Coordinator) appendEvent(ctx context.Context, logger *slog.Logger, executionID string, eventType events.EventType, stageID string, metadata map[string]any) {
	event := &models.ExecutionEvent{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		Type:        string(eventType),
		StageID:     stageID,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}

	if err := c.store.AppendEvent(ctx, event); err != nil {
		logger.ErrorContext(ctx, "Failed to append compensation event", "error", err)
	}
}
