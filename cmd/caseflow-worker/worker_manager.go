package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/eventbus"
	"github.com/caseflow/caseflow/pkg/events"
	"github.com/caseflow/caseflow/pkg/executor"
)

// WorkerManager consumes execution requests from the event bus and drives
// them through the executor. It also logs a periodic snapshot of every
// circuit breaker so downstream health is visible in the worker's logs.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	executor *executor.Executor
	breakers *breaker.Registry
	eventBus eventbus.EventBus
	cron     *cron.Cron
}

func NewWorkerManager(
	id string,
	exec *executor.Executor,
	breakers *breaker.Registry,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "caseflow-worker", "worker_id", id),
		executor: exec,
		breakers: breakers,
		eventBus: eventBus,
		cron:     cron.New(),
	}
}

func (w *WorkerManager) Start(ctx context.Context, breakerLogSchedule string) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if breakerLogSchedule != "" {
		if _, err := w.cron.AddFunc(breakerLogSchedule, w.logBreakerSnapshots); err != nil {
			return err
		}

		w.cron.Start()
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	w.cron.Stop()
	w.executor.Wait()

	return nil
}

func (w *WorkerManager) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", requested.WorkflowID,
		"event_id", requested.ID,
	)

	if requested.ExecutionID != "" {
		logger.InfoContext(ctx, "Resuming execution from request",
			"execution_id", requested.ExecutionID)

		if err := w.executor.Resume(ctx, requested.ExecutionID, requested.RetryFromStage); err != nil {
			logger.ErrorContext(ctx, "Failed to resume execution", "error", err)

			return err
		}

		return nil
	}

	logger.InfoContext(ctx, "Starting execution from request")

	executionID, err := w.executor.Start(ctx, requested.WorkflowID, requested.InitialContext, requested.CallerID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start execution", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution started", "execution_id", executionID)

	return nil
}

func (w *WorkerManager) logBreakerSnapshots() {
	for _, snap := range w.breakers.Export() {
		w.logger.Info("Circuit breaker snapshot",
			"key", snap.Key,
			"state", string(snap.State),
			"samples", snap.Samples,
			"failure_rate", snap.FailureRate,
			"average_latency", snap.AverageLatency,
		)
	}
}
