// Package events defines the event types recorded in execution audit logs
// and exchanged between the API and workers.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topic for execution lifecycle events.
const Topic = "caseflow.executions"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Bus events: requests and terminal notifications between processes.
	ExecutionRequestedEvent EventType = "execution.requested"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	// Audit events: every executor state change, persisted per execution.
	ExecutionInitiatedEvent  EventType = "execution_initiated"
	ExecutionStartedEvent    EventType = "execution_started"
	StageStartedEvent        EventType = "stage_started"
	StageSkippedEvent        EventType = "stage_skipped"
	StageRetriedEvent        EventType = "stage_retried"
	StageCompletedEvent      EventType = "stage_completed"
	StageFailedEvent         EventType = "stage_failed"
	CompensationStartedEvent EventType = "compensation_started"
	StageCompensatedEvent    EventType = "stage_compensated"
	CompensationFailedEvent  EventType = "compensation_failed"
	ExecutionCompletedAudit  EventType = "execution_completed"
	ExecutionFailedAudit     EventType = "execution_failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// ExecutionRequested asks a worker to drive an execution. ExecutionID may
// reference an existing record (resume); RetryFromStage is audit metadata for
// operator-initiated resumes.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID    string         `json:"execution_id"`
	InitialContext map[string]any `json:"initial_context,omitempty"`
	CallerID       string         `json:"caller_id,omitempty"`
	RetryFromStage string         `json:"retry_from_stage,omitempty"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID    string        `json:"execution_id"`
	StagesExecuted int           `json:"stages_executed"`
	Duration       time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	FailedStage string        `json:"failed_stage"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}
