// Package web provides HTTP handlers and REST API endpoints for workflow
// orchestration.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/executor"
	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/store"
)

type APIHandlers struct {
	logger    *slog.Logger
	catalog   *catalog.Catalog
	executor  *executor.Executor
	store     store.ExecutionStore
	breakers  *breaker.Registry
	validator *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	cat *catalog.Catalog,
	exec *executor.Executor,
	executionStore store.ExecutionStore,
	breakers *breaker.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:    logger.With("module", "web"),
		catalog:   cat,
		executor:  exec,
		store:     executionStore,
		breakers:  breakers,
		validator: validate,
	}
}

// RegisterWorkflow validates and registers a workflow definition. The raw
// payload is schema-checked before decoding; graph validation errors come
// back as the ValidationResult body with status 422.
func (h *APIHandlers) RegisterWorkflow(c fiber.Ctx) error {
	body := c.Body()

	if err := ValidateDefinitionPayload(body); err != nil {
		return badRequest(c, err.Error())
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result := h.catalog.Register(&def)
	if !result.Valid {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"workflow":   def,
		"validation": result,
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	return c.JSON(h.catalog.List())
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.catalog.Lookup(id)
	if err != nil {
		return handleCoreError(c, err)
	}

	return c.JSON(def)
}

// StartExecution kicks off an asynchronous execution of a registered
// workflow and returns 202 with the execution id.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID, err := h.executor.Start(c.Context(), workflowID, req.Context, req.CallerID)
	if err != nil {
		return handleCoreError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartExecutionResponse{
		ExecutionID: executionID,
		Status:      string(models.ExecutionStatusInitiated),
	})
}

// ResumeExecution re-drives an existing execution; completed stages are
// skipped through the step ledger.
func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	executionID := c.Params("id")
	if executionID == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req ResumeExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.executor.Resume(c.Context(), executionID, req.RetryFromStage); err != nil {
		return handleCoreError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartExecutionResponse{
		ExecutionID: executionID,
		Status:      string(models.ExecutionStatusInitiated),
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	executions, err := h.store.ListExecutions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.store.GetExecution(c.Context(), id)
	if err != nil {
		return handleCoreError(c, err)
	}

	return c.JSON(execution)
}

// GetExecutionEvents returns the execution's audit log in append order.
func (h *APIHandlers) GetExecutionEvents(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if _, err := h.store.GetExecution(c.Context(), id); err != nil {
		return handleCoreError(c, err)
	}

	events, err := h.store.ListEvents(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(events)
}

func (h *APIHandlers) GetBreakers(c fiber.Ctx) error {
	return c.JSON(h.breakers.Export())
}

func (h *APIHandlers) GetBreaker(c fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return badRequest(c, "Breaker key is required")
	}

	return c.JSON(h.breakers.Inspect(key))
}

func (h *APIHandlers) ResetBreaker(c fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return badRequest(c, "Breaker key is required")
	}

	h.breakers.Reset(key)

	return c.JSON(ResetBreakerResponse{
		Key:   key,
		State: string(h.breakers.State(key)),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeErr := h.store.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	storeStatus := "ok"

	if storeErr != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		storeStatus = storeErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"store":     storeStatus,
			"workflows": len(h.catalog.List()),
		},
		"timestamp": time.Now().UTC(),
	})
}
