// Package web provides HTTP request and response types for the workflow API.
package web

// StartExecutionRequest represents the request body for starting a new
// execution of a registered workflow.
type StartExecutionRequest struct {
	Context  map[string]any `json:"context"`
	CallerID string         `json:"caller_id" validate:"required"`
}

// StartExecutionResponse acknowledges an accepted execution. The walk runs
// asynchronously; poll the execution resource for progress.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// ResumeExecutionRequest represents the request body for resuming a failed or
// interrupted execution.
type ResumeExecutionRequest struct {
	RetryFromStage string `json:"retry_from_stage,omitempty"`
}

// ResetBreakerResponse acknowledges a breaker reset.
type ResetBreakerResponse struct {
	Key   string `json:"key"`
	State string `json:"state"`
}
