// Package executor walks workflow definitions stage by stage: every stage
// invocation goes through the circuit breaker registry and the stage invoker,
// progress is persisted through the execution store, and an unrecoverable
// stage failure unwinds completed work through the compensation coordinator.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/compensation"
	"github.com/caseflow/caseflow/pkg/eventbus"
	"github.com/caseflow/caseflow/pkg/events"
	"github.com/caseflow/caseflow/pkg/invoker"
	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/otelhelper"
	"github.com/caseflow/caseflow/pkg/store"
)

// Executor drives workflow executions. Any number of executions may run
// concurrently; the only state shared between them is the breaker registry,
// which deliberately tracks downstream health process-wide.
type Executor struct {
	logger      *slog.Logger
	catalog     *catalog.Catalog
	breakers    *breaker.Registry
	invoker     invoker.Invoker
	store       store.ExecutionStore
	compensator *compensation.Coordinator
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer

	wg sync.WaitGroup
}

func New(
	logger *slog.Logger,
	cat *catalog.Catalog,
	breakers *breaker.Registry,
	inv invoker.Invoker,
	executionStore store.ExecutionStore,
	compensator *compensation.Coordinator,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
) *Executor {
	return &Executor{
		logger:      logger.With("module", "executor"),
		catalog:     cat,
		breakers:    breakers,
		invoker:     inv,
		store:       executionStore,
		compensator: compensator,
		publisher:   publisher,
		tracer:      tracer,
	}
}

// runState is the per-run view of an execution. Parallel branches mutate the
// shared execution record, so every touch goes through mu.
type runState struct {
	mu           sync.Mutex
	execution    *models.WorkflowExecution
	finalReached bool
	stagesRun    int
}

// Start creates and persists an execution record in initiated status and
// returns its id; the DAG walk itself runs asynchronously. Progress is
// observed through the execution store and the event log, not through the
// return value.
func (e *Executor) Start(ctx context.Context, workflowID string, initialContext map[string]any, callerID string) (string, error) {
	def, err := e.catalog.Lookup(workflowID)
	if err != nil {
		return "", fmt.Errorf("failed to look up workflow %s: %w", workflowID, err)
	}

	now := time.Now().UTC()

	execution := &models.WorkflowExecution{
		ID:           generateExecutionID(),
		WorkflowID:   def.ID,
		Version:      def.Version,
		Status:       models.ExecutionStatusInitiated,
		CurrentStage: def.InitialStage,
		Context: models.ExecutionContext{
			Values:   initialContext,
			Metadata: map[string]any{models.ContextKeyCallerID: callerID},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if execution.Context.Values == nil {
		execution.Context.Values = make(map[string]any)
	}

	if err := e.store.CreateExecution(ctx, execution); err != nil {
		return "", fmt.Errorf("failed to create execution record: %w", err)
	}

	e.appendAudit(ctx, execution.ID, events.ExecutionInitiatedEvent, "", map[string]any{
		"workflow_id": def.ID,
		"caller_id":   callerID,
	})

	e.spawnRun(def, execution.ID)

	return execution.ID, nil
}

// Resume re-drives an existing execution from its last successfully completed
// stage: the walk restarts at the initial stage and the step ledger fast-skips
// everything already done. retryFromStage is recorded for audit.
func (e *Executor) Resume(ctx context.Context, executionID, retryFromStage string) error {
	execution, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	def, err := e.catalog.Lookup(execution.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to look up workflow %s: %w", execution.WorkflowID, err)
	}

	if execution.Context.Metadata == nil {
		execution.Context.Metadata = make(map[string]any)
	}

	if retryFromStage != "" {
		execution.Context.Metadata[models.ContextKeyRetryFromStage] = retryFromStage
	}

	execution.Status = models.ExecutionStatusInitiated
	execution.ErrorMessage = ""
	execution.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to update execution %s: %w", executionID, err)
	}

	e.appendAudit(ctx, executionID, events.ExecutionInitiatedEvent, "", map[string]any{
		"resumed":          true,
		"retry_from_stage": retryFromStage,
	})

	e.spawnRun(def, executionID)

	return nil
}

// Wait blocks until all in-flight runs finish. Intended for shutdown and
// tests.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) spawnRun(def *models.WorkflowDefinition, executionID string) {
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		// The walk outlives the caller's request context on purpose:
		// cancelling an HTTP request must not abort a running execution.
		e.run(context.Background(), def, executionID)
	}()
}

func (e *Executor) run(ctx context.Context, def *models.WorkflowDefinition, executionID string) {
	logger := e.logger.With("workflow_id", def.ID, "execution_id", executionID)

	if e.tracer != nil {
		var span trace.Span

		ctx, span = e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
			attribute.String(otelhelper.WorkflowIDKey, def.ID),
			attribute.String(otelhelper.ExecutionIDKey, executionID),
		))
		defer span.End()
	}

	execution, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load execution for run", "error", err)

		return
	}

	start := time.Now()

	execution.Status = models.ExecutionStatusInProgress
	execution.UpdatedAt = time.Now().UTC()

	st := &runState{execution: execution}

	if err := e.persist(ctx, st); err != nil {
		logger.ErrorContext(ctx, "Failed to mark execution in progress", "error", err)

		return
	}

	e.appendAudit(ctx, executionID, events.ExecutionStartedEvent, "", nil)
	logger.InfoContext(ctx, "Starting workflow walk", "initial_stage", def.InitialStage)

	walkErr := e.walkUntil(ctx, logger, def, st, def.InitialStage, "")

	if walkErr != nil {
		e.failExecution(ctx, logger, def, st, walkErr, time.Since(start))

		return
	}

	e.completeExecution(ctx, logger, def, st, time.Since(start))
}

// walkUntil advances the execution from the given stage until a final stage,
// the optional stop stage (exclusive, used by parallel branches to halt at
// their join), or a stage failure.
func (e *Executor) walkUntil(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, st *runState, current, stop string) error {
	for {
		if stop != "" && current == stop {
			return nil
		}

		stage, ok := def.StageByID(current)
		if !ok {
			return &StageError{StageID: current, Kind: KindPermanent,
				Err: fmt.Errorf("stage %s not found in workflow %s", current, def.ID)}
		}

		st.mu.Lock()
		st.execution.CurrentStage = current
		st.mu.Unlock()

		if err := e.persist(ctx, st); err != nil {
			return &StageError{StageID: current, Kind: KindPermanent, Err: err}
		}

		if err := e.executeStage(ctx, logger, def, st, stage); err != nil {
			return err
		}

		if def.IsFinalStage(current) {
			st.mu.Lock()
			st.finalReached = true
			st.mu.Unlock()

			return nil
		}

		if heads := uniqueTargets(e.catalog.BranchTargets(def, current)); len(heads) > 1 {
			join, found := catalog.Join(def, heads)
			if found {
				if err := e.walkBranches(ctx, logger, def, st, heads, join); err != nil {
					return err
				}

				st.mu.Lock()
				done := st.finalReached
				st.mu.Unlock()

				if done {
					return nil
				}

				current = join

				continue
			}

			logger.WarnContext(ctx, "Forked stages never reconverge, taking first transition",
				"stage_id", current, "branches", heads)
		}

		st.mu.Lock()
		execCtx := st.execution.Context
		st.mu.Unlock()

		next, err := e.catalog.NextStage(def, current, execCtx)
		if err != nil {
			if errors.Is(err, catalog.ErrNoNextStage) {
				if stop != "" {
					// A dead-ended branch simply finishes early.
					return nil
				}

				return &StageError{StageID: current, Kind: KindPermanent,
					Err: fmt.Errorf("no transition matched from stage %s", current)}
			}

			return &StageError{StageID: current, Kind: KindPermanent,
				Err: fmt.Errorf("failed to evaluate transitions from stage %s: %w", current, err)}
		}

		current = next
	}
}

// walkBranches runs fan-out branches concurrently until each reaches the join
// stage. The first branch failure cancels the others and surfaces; completed
// work on every branch stays in the ledger for compensation.
func (e *Executor) walkBranches(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, st *runState, heads []string, join string) error {
	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	logger.InfoContext(ctx, "Executing parallel branches", "branches", heads, "join_stage", join)

	for _, head := range heads {
		wg.Add(1)

		go func(head string) {
			defer wg.Done()

			if err := e.walkUntil(branchCtx, logger, def, st, head, join); err != nil {
				errMu.Lock()

				if firstErr == nil {
					firstErr = err

					cancel()
				}

				errMu.Unlock()
			}
		}(head)
	}

	wg.Wait()

	return firstErr
}

// executeStage runs one stage with idempotency skip, circuit breaking and the
// stage's retry policy. On success the step is appended to the ledger and the
// execution persisted before returning.
func (e *Executor) executeStage(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, st *runState, stage *models.Stage) error {
	logger = logger.With("stage_id", stage.ID, "capability", stage.Capability)

	st.mu.Lock()
	_, alreadyDone := st.execution.Context.StepFor(stage.ID)
	st.mu.Unlock()

	if alreadyDone {
		logger.InfoContext(ctx, "Stage already completed, skipping")
		e.appendAudit(ctx, st.execution.ID, events.StageSkippedEvent, stage.ID, nil)

		return nil
	}

	if e.tracer != nil {
		var span trace.Span

		ctx, span = e.tracer.Start(ctx, "workflow.stage", trace.WithAttributes(
			attribute.String(otelhelper.StageIDKey, stage.ID),
			attribute.String(otelhelper.CapabilityKey, stage.Capability),
		))
		defer span.End()
	}

	key := breaker.Key(def.ID, stage.ID)
	policy := stage.Retry

	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		e.appendAudit(ctx, st.execution.ID, events.StageStartedEvent, stage.ID,
			map[string]any{"attempt": attempt})

		result, err := e.invokeThroughBreaker(ctx, st, stage, key)
		if err == nil {
			return e.recordStageSuccess(ctx, logger, st, stage, result)
		}

		lastErr = err
		kind := classify(err)

		if kind != KindTransient {
			logger.ErrorContext(ctx, "Stage failed", "attempt", attempt, "kind", string(kind), "error", err)

			return &StageError{StageID: stage.ID, Kind: kind, Err: err}
		}

		if attempt == policy.MaxAttempts {
			break
		}

		delay := retryDelay(policy, attempt)
		if policy.Jitter {
			delay = withJitter(delay)
		}

		logger.WarnContext(ctx, "Stage attempt failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)

		e.appendAudit(ctx, st.execution.ID, events.StageRetriedEvent, stage.ID,
			map[string]any{"attempt": attempt, "delay_ms": delay.Milliseconds(), "error": err.Error()})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &StageError{StageID: stage.ID, Kind: KindPermanent, Err: ctx.Err()}
		}
	}

	logger.ErrorContext(ctx, "Stage failed after exhausting retries",
		"attempts", policy.MaxAttempts, "error", lastErr)

	return &StageError{StageID: stage.ID, Kind: KindPermanent,
		Err: fmt.Errorf("retries exhausted after %d attempts: %w", policy.MaxAttempts, lastErr)}
}

func (e *Executor) invokeThroughBreaker(ctx context.Context, st *runState, stage *models.Stage, key string) (map[string]any, error) {
	st.mu.Lock()

	payload := make(map[string]any, len(st.execution.Context.Values)+2)
	for k, v := range st.execution.Context.Values {
		payload[k] = v
	}

	payload["execution_id"] = st.execution.ID
	payload["workflow_id"] = st.execution.WorkflowID

	st.mu.Unlock()

	var result map[string]any

	err := e.breakers.Execute(ctx, key, func(ctx context.Context) error {
		callCtx := ctx

		if stage.Timeout > 0 {
			var cancel context.CancelFunc

			callCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
			defer cancel()
		}

		data, invokeErr := e.invoker.Invoke(callCtx, stage.Capability, payload)
		if invokeErr != nil {
			return invokeErr
		}

		result = data

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (e *Executor) recordStageSuccess(ctx context.Context, logger *slog.Logger, st *runState, stage *models.Stage, result map[string]any) error {
	step := &models.ExecutedStep{
		StageID:             stage.ID,
		Capability:          stage.Capability,
		CompensationHandler: stage.CompensationHandler,
		Result:              result,
		CompletedAt:         time.Now().UTC(),
	}

	st.mu.Lock()
	st.execution.Context.Steps = append(st.execution.Context.Steps, step)
	st.stagesRun++
	st.mu.Unlock()

	if err := e.persist(ctx, st); err != nil {
		return &StageError{StageID: stage.ID, Kind: KindPermanent,
			Err: fmt.Errorf("failed to persist completed step: %w", err)}
	}

	logger.InfoContext(ctx, "Stage completed")
	e.appendAudit(ctx, st.execution.ID, events.StageCompletedEvent, stage.ID, nil)

	return nil
}

func (e *Executor) completeExecution(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, st *runState, elapsed time.Duration) {
	st.mu.Lock()
	st.execution.Status = models.ExecutionStatusCompleted
	st.execution.UpdatedAt = time.Now().UTC()
	executionID := st.execution.ID
	stagesRun := st.stagesRun
	st.mu.Unlock()

	if err := e.persist(ctx, st); err != nil {
		logger.ErrorContext(ctx, "Failed to persist completed execution", "error", err)
	}

	e.appendAudit(ctx, executionID, events.ExecutionCompletedAudit, "",
		map[string]any{"stages_executed": stagesRun, "duration_ms": elapsed.Milliseconds()})

	logger.InfoContext(ctx, "Workflow execution completed",
		"stages_executed", stagesRun, "duration", elapsed)

	if e.publisher != nil {
		event := events.ExecutionCompleted{
			BaseEvent:      events.NewBaseEvent(events.ExecutionCompletedEvent, def.ID),
			ExecutionID:    executionID,
			StagesExecuted: stagesRun,
			Duration:       elapsed,
		}

		if err := e.publisher.Publish(ctx, def.ID, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish completion event", "error", err)
		}
	}
}

func (e *Executor) failExecution(ctx context.Context, logger *slog.Logger, def *models.WorkflowDefinition, st *runState, walkErr error, elapsed time.Duration) {
	var failedStage string
	if stageErr, ok := walkErr.(*StageError); ok {
		failedStage = stageErr.StageID
	}

	st.mu.Lock()
	executionID := st.execution.ID
	st.mu.Unlock()

	e.appendAudit(ctx, executionID, events.StageFailedEvent, failedStage,
		map[string]any{"error": walkErr.Error()})

	logger.ErrorContext(ctx, "Workflow execution failed, compensating",
		"failed_stage", failedStage, "error", walkErr)

	if _, err := e.compensator.Rollback(ctx, executionID); err != nil {
		logger.ErrorContext(ctx, "Compensation could not run", "error", err)
	}

	st.mu.Lock()
	st.execution.Status = models.ExecutionStatusFailed
	st.execution.ErrorMessage = walkErr.Error()
	st.execution.UpdatedAt = time.Now().UTC()
	st.mu.Unlock()

	if err := e.persist(ctx, st); err != nil {
		logger.ErrorContext(ctx, "Failed to persist failed execution", "error", err)
	}

	e.appendAudit(ctx, executionID, events.ExecutionFailedAudit, failedStage,
		map[string]any{"error": walkErr.Error(), "duration_ms": elapsed.Milliseconds()})

	if e.publisher != nil {
		event := events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, def.ID),
			ExecutionID: executionID,
			FailedStage: failedStage,
			Error:       walkErr.Error(),
			Duration:    elapsed,
		}

		if err := e.publisher.Publish(ctx, def.ID, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish failure event", "error", err)
		}
	}
}

// persist writes the current execution record under the run lock so parallel
// branches never interleave partial updates.
func (e *Executor) persist(ctx context.Context, st *runState) error {
	st.mu.Lock()
	st.execution.UpdatedAt = time.Now().UTC()
	snapshot := *st.execution
	st.mu.Unlock()

	return e.store.UpdateExecution(ctx, &snapshot)
}

func (e *Executor) appendAudit(ctx context.Context, executionID string, eventType events.EventType, stageID string, metadata map[string]any) {
	event := &models.ExecutionEvent{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		Type:        string(eventType),
		StageID:     stageID,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.store.AppendEvent(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to append audit event",
			"execution_id", executionID, "event_type", string(eventType), "error", err)
	}
}

func uniqueTargets(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))

	for _, t := range targets {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	return out
}

func generateExecutionID() string {
	return "exec-" + uuid.New().String()[:8]
}
