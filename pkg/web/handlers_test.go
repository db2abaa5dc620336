package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/compensation"
	"github.com/caseflow/caseflow/pkg/executor"
	"github.com/caseflow/caseflow/pkg/invoker"
	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/store/file"
	"github.com/caseflow/caseflow/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *executor.Executor, *file.Store) {
	t.Helper()

	logger := slog.Default()
	guards := catalog.NewGuardRegistry()
	require.NoError(t, catalog.RegisterBuiltinGuards(guards))

	cat := catalog.New(logger, guards)
	breakers := breaker.NewRegistry(logger, breaker.DefaultConfig())
	executionStore := file.NewStore(t.TempDir())
	compensator := compensation.NewCoordinator(logger, executionStore, compensation.NewRegistry())

	agent := invoker.Func(func(context.Context, string, map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	exec := executor.New(logger, cat, breakers, agent, executionStore, compensator, nil, nil)

	handlers := web.NewAPIHandlers(logger, cat, exec, executionStore, breakers,
		validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.RegisterWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/executions", handlers.StartExecution)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/events", handlers.GetExecutionEvents)
	e.Post("/:id/resume", handlers.ResumeExecution)

	b := app.Group("/breakers")
	b.Get("/", handlers.GetBreakers)
	b.Get("/:key", handlers.GetBreaker)
	b.Post("/:key/reset", handlers.ResetBreaker)

	app.Get("/health", handlers.HealthCheck)

	return app, exec, executionStore
}

func definitionPayload() map[string]any {
	return map[string]any{
		"id":   "onboarding",
		"name": "Onboarding",
		"stages": []map[string]any{
			{"id": "a", "name": "Collect", "capability": "collect"},
			{"id": "b", "name": "Activate", "capability": "activate"},
		},
		"transitions": []map[string]any{
			{"from_stage": "a", "to_stage": "b"},
		},
		"initial_stage": "a",
		"final_stages":  []string{"b"},
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func getJSON(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestRegisterWorkflow_Success(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/", definitionPayload())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp := getJSON(t, app, "/workflows/")
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var defs []models.WorkflowDefinition
	decodeBody(t, listResp, &defs)
	require.Len(t, defs, 1)
	assert.Equal(t, "onboarding", defs[0].ID)
}

func TestRegisterWorkflow_SchemaViolation(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	payload := definitionPayload()
	delete(payload, "initial_stage")

	resp := postJSON(t, app, "/workflows/", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterWorkflow_GraphErrorsReturnValidationResult(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	payload := definitionPayload()
	payload["initial_stage"] = "ghost"

	resp := postJSON(t, app, "/workflows/", payload)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var result models.ValidationResult
	decodeBody(t, resp, &result)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := getJSON(t, app, "/workflows/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartExecution_Accepted(t *testing.T) {
	t.Parallel()

	app, exec, executionStore := setupTestApp(t)

	require.Equal(t, http.StatusCreated, postJSON(t, app, "/workflows/", definitionPayload()).StatusCode)

	resp := postJSON(t, app, "/workflows/onboarding/executions", web.StartExecutionRequest{
		Context:  map[string]any{"customer": "acme"},
		CallerID: "portal",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started web.StartExecutionResponse
	decodeBody(t, resp, &started)
	require.NotEmpty(t, started.ExecutionID)

	exec.Wait()

	execution, err := executionStore.GetExecution(context.Background(), started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	eventsResp := getJSON(t, app, "/executions/"+started.ExecutionID+"/events")
	require.Equal(t, http.StatusOK, eventsResp.StatusCode)

	var recorded []models.ExecutionEvent
	decodeBody(t, eventsResp, &recorded)
	assert.NotEmpty(t, recorded)
}

func TestStartExecution_UnknownWorkflow(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/nope/executions", web.StartExecutionRequest{CallerID: "portal"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartExecution_MissingCallerID(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	require.Equal(t, http.StatusCreated, postJSON(t, app, "/workflows/", definitionPayload()).StatusCode)

	resp := postJSON(t, app, "/workflows/onboarding/executions", web.StartExecutionRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetExecution_NotFound(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := getJSON(t, app, "/executions/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResumeExecution_NotFound(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := postJSON(t, app, "/executions/missing/resume", web.ResumeExecutionRequest{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBreakerEndpoints(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	inspectResp := getJSON(t, app, "/breakers/wf:stage")
	require.Equal(t, http.StatusOK, inspectResp.StatusCode)

	var snap breaker.Snapshot
	decodeBody(t, inspectResp, &snap)
	assert.Equal(t, breaker.StateClosed, snap.State)

	resetResp := postJSON(t, app, "/breakers/wf:stage/reset", nil)
	require.Equal(t, http.StatusOK, resetResp.StatusCode)

	var reset web.ResetBreakerResponse
	decodeBody(t, resetResp, &reset)
	assert.Equal(t, "wf:stage", reset.Key)
	assert.Equal(t, string(breaker.StateClosed), reset.State)

	exportResp := getJSON(t, app, "/breakers/")
	require.Equal(t, http.StatusOK, exportResp.StatusCode)

	var snaps []breaker.Snapshot
	decodeBody(t, exportResp, &snaps)
	assert.NotEmpty(t, snaps)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp := getJSON(t, app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}
