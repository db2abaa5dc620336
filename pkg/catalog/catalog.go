// Package catalog is the static registry of workflow definitions: registration
// with graph validation, lookup, and transition sequencing.
package catalog

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/caseflow/caseflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// ErrDefinitionNotFound indicates no definition is registered under the
// requested workflow id.
var ErrDefinitionNotFound = errors.New("workflow definition not found")

// ErrNoNextStage indicates no transition from the current stage matched.
var ErrNoNextStage = errors.New("no next stage")

// Catalog holds registered workflow definitions. Definitions are immutable
// once registered; re-registering an id replaces the definition wholesale
// (the version field is the caller's concern).
type Catalog struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	validate    *validator.Validate
	guards      *GuardRegistry
	definitions map[string]*models.WorkflowDefinition
}

func New(logger *slog.Logger, guards *GuardRegistry) *Catalog {
	return &Catalog{
		logger:      logger.With("module", "catalog"),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		guards:      guards,
		definitions: make(map[string]*models.WorkflowDefinition),
	}
}

// Guards exposes the guard registry so the business-rule owner can register
// predicates through the same wiring point.
func (c *Catalog) Guards() *GuardRegistry {
	return c.guards
}

// Register validates the definition and, when it has no hard errors, stores
// it. Referential failures are errors; unreachable stages and cycles are
// warnings and do not block registration.
func (c *Catalog) Register(def *models.WorkflowDefinition) models.ValidationResult {
	result := models.ValidationResult{Valid: true}

	if err := c.validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs {
				result.AddError("field " + ve.Namespace() + " failed on " + ve.Tag())
			}
		} else {
			result.AddError(err.Error())
		}

		return result
	}

	validateGraph(def, &result)

	if !result.Valid {
		c.logger.Warn("Rejected workflow definition",
			"workflow_id", def.ID, "errors", result.Errors)

		return result
	}

	for _, warning := range result.Warnings {
		c.logger.Warn("Workflow definition warning", "workflow_id", def.ID, "warning", warning)
	}

	for _, stage := range def.Stages {
		if stage.Retry.MaxAttempts == 0 {
			stage.Retry = models.DefaultRetryPolicy()
		}
	}

	def.RegisteredAt = time.Now().UTC()

	c.mu.Lock()
	c.definitions[def.ID] = def
	c.mu.Unlock()

	c.logger.Info("Registered workflow definition",
		"workflow_id", def.ID, "version", def.Version, "stages", len(def.Stages))

	return result
}

// Lookup returns the definition registered under the given workflow id.
func (c *Catalog) Lookup(workflowID string) (*models.WorkflowDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.definitions[workflowID]
	if !ok {
		return nil, ErrDefinitionNotFound
	}

	return def, nil
}

// List returns all registered definitions.
func (c *Catalog) List() []*models.WorkflowDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]*models.WorkflowDefinition, 0, len(c.definitions))
	for _, def := range c.definitions {
		defs = append(defs, def)
	}

	return defs
}

// NextStage evaluates the transitions leaving currentStageID in declaration
// order and returns the target of the first match. An unguarded transition
// matches unconditionally. A guarded transition matches when its predicate
// holds against the execution context; an unknown guard name skips that
// transition with a warning rather than failing the walk.
func (c *Catalog) NextStage(def *models.WorkflowDefinition, currentStageID string, ctx models.ExecutionContext) (string, error) {
	for _, tr := range def.TransitionsFrom(currentStageID) {
		if tr.Guard == "" {
			return tr.ToStage, nil
		}

		guard, ok := c.guards.Lookup(tr.Guard)
		if !ok {
			c.logger.Warn("Transition references unregistered guard, skipping",
				"workflow_id", def.ID, "from_stage", currentStageID, "guard", tr.Guard)

			continue
		}

		matched, err := guard(ctx)
		if err != nil {
			return "", err
		}

		if matched {
			return tr.ToStage, nil
		}
	}

	return "", ErrNoNextStage
}

// BranchTargets returns the targets of every unguarded transition leaving the
// stage. Two or more targets means the workflow forks into parallel branches
// at this stage.
func (c *Catalog) BranchTargets(def *models.WorkflowDefinition, stageID string) []string {
	targets := make([]string, 0)

	for _, tr := range def.TransitionsFrom(stageID) {
		if tr.Guard == "" {
			targets = append(targets, tr.ToStage)
		}
	}

	return targets
}
