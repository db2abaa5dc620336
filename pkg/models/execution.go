package models

import "time"

type ExecutionStatus string

const (
	ExecutionStatusInitiated  ExecutionStatus = "initiated"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
)

// Well-known execution metadata keys.
const (
	ContextKeyRetryFromStage = "retry_from_stage"
	ContextKeyCallerID       = "caller_id"
)

// WorkflowExecution is one run of a workflow definition. The record is
// persisted after every state change so a crashed run can be resumed from its
// last completed stage.
type WorkflowExecution struct {
	ID           string           `json:"id"`
	WorkflowID   string           `json:"workflow_id"`
	Version      string           `json:"version,omitempty"`
	Status       ExecutionStatus  `json:"status"`
	CurrentStage string           `json:"current_stage,omitempty"`
	Context      ExecutionContext `json:"context"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ExecutionContext carries the business values flowing between stages plus
// the ledger of completed steps. The ledger is what makes re-runs idempotent:
// a stage present in Steps is never invoked again.
type ExecutionContext struct {
	Values   map[string]any  `json:"values"`
	Steps    []*ExecutedStep `json:"steps,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// StepFor returns the ledger entry for a stage, if the stage already
// completed in this execution.
func (c ExecutionContext) StepFor(stageID string) (*ExecutedStep, bool) {
	for _, step := range c.Steps {
		if step.StageID == stageID {
			return step, true
		}
	}

	return nil, false
}

// ExecutedStep records one successfully completed stage. CompensationHandler
// is snapshotted from the stage definition so rollback does not depend on the
// definition still being registered.
type ExecutedStep struct {
	StageID             string         `json:"stage_id"`
	Capability          string         `json:"capability"`
	CompensationHandler string         `json:"compensation_handler,omitempty"`
	Result              map[string]any `json:"result,omitempty"`
	CompletedAt         time.Time      `json:"completed_at"`
}
