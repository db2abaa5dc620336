package models

import "time"

// WorkflowDefinition is a directed graph of stages connected by transitions.
// Definitions are immutable once registered; executions reference them by ID
// and version.
type WorkflowDefinition struct {
	ID           string        `json:"id" validate:"required"`
	Name         string        `json:"name" validate:"required"`
	Version      string        `json:"version"`
	Description  string        `json:"description,omitempty"`
	Stages       []*Stage      `json:"stages" validate:"required,min=1,dive"`
	Transitions  []*Transition `json:"transitions" validate:"dive"`
	InitialStage string        `json:"initial_stage" validate:"required"`
	FinalStages  []string      `json:"final_stages" validate:"required,min=1"`
	RegisteredAt time.Time     `json:"registered_at,omitempty"`
}

// StageByID returns the stage with the given id, if present.
func (d *WorkflowDefinition) StageByID(stageID string) (*Stage, bool) {
	for _, stage := range d.Stages {
		if stage.ID == stageID {
			return stage, true
		}
	}

	return nil, false
}

func (d *WorkflowDefinition) IsFinalStage(stageID string) bool {
	for _, final := range d.FinalStages {
		if final == stageID {
			return true
		}
	}

	return false
}

// TransitionsFrom returns the outgoing transitions of a stage in declaration
// order. Declaration order is significant: transition evaluation is
// first-match-wins.
func (d *WorkflowDefinition) TransitionsFrom(stageID string) []*Transition {
	var out []*Transition

	for _, t := range d.Transitions {
		if t.FromStage == stageID {
			out = append(out, t)
		}
	}

	return out
}

// Stage is a single unit of work: one capability invocation against a remote
// agent, with its own timeout, retry policy and optional compensation
// handler.
type Stage struct {
	ID                  string        `json:"id" validate:"required"`
	Name                string        `json:"name" validate:"required"`
	Capability          string        `json:"capability" validate:"required"`
	Timeout             time.Duration `json:"timeout,omitempty"`
	Retry               RetryPolicy   `json:"retry,omitempty"`
	CompensationHandler string        `json:"compensation_handler,omitempty"`
	RequiredTags        []string      `json:"required_tags,omitempty"`
}

// RetryPolicy controls how transient stage failures are retried. The delay
// before attempt n+1 is InitialDelay * Multiplier^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	Jitter       bool          `json:"jitter"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Transition is a directed edge between stages. Guard names a registered
// guard function; an empty guard matches unconditionally.
type Transition struct {
	FromStage string `json:"from_stage" validate:"required"`
	ToStage   string `json:"to_stage" validate:"required"`
	Guard     string `json:"guard,omitempty"`
}
