package models

import "time"

// ExecutionEvent is one entry in the append-only audit log of an execution.
// Every state change and stage attempt the executor makes is recorded as one
// of these, so a run can be inspected or replayed after the fact.
type ExecutionEvent struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Type        string         `json:"type"`
	StageID     string         `json:"stage_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
