package catalog

import (
	"fmt"

	"github.com/caseflow/caseflow/pkg/models"
)

// validateGraph applies the graph-level checks that struct tags cannot
// express. Referential failures are hard errors; reachability and cycle
// findings are warnings (cycles are permitted for intentional remediation
// loops, but always flagged).
func validateGraph(def *models.WorkflowDefinition, result *models.ValidationResult) {
	if _, ok := def.StageByID(def.InitialStage); !ok {
		result.AddError(fmt.Sprintf("initial stage %q is not in the stage set", def.InitialStage))
	}

	for _, final := range def.FinalStages {
		if _, ok := def.StageByID(final); !ok {
			result.AddError(fmt.Sprintf("final stage %q is not in the stage set", final))
		}
	}

	seen := make(map[string]bool, len(def.Stages))

	for _, stage := range def.Stages {
		if seen[stage.ID] {
			result.AddError(fmt.Sprintf("duplicate stage id %q", stage.ID))
		}

		seen[stage.ID] = true
	}

	for _, tr := range def.Transitions {
		if _, ok := def.StageByID(tr.FromStage); !ok {
			result.AddError(fmt.Sprintf("transition references unknown stage %q", tr.FromStage))
		}

		if _, ok := def.StageByID(tr.ToStage); !ok {
			result.AddError(fmt.Sprintf("transition references unknown stage %q", tr.ToStage))
		}
	}

	if !result.Valid {
		return
	}

	reachable := forwardClosure(def, def.InitialStage)

	for _, stage := range def.Stages {
		if stage.ID != def.InitialStage && !reachable[stage.ID] {
			result.AddWarning(fmt.Sprintf("stage %q is unreachable from the initial stage", stage.ID))
		}
	}

	if hasCycle(def, def.InitialStage) {
		result.AddWarning("workflow graph contains a cycle")
	}
}

// forwardClosure returns every stage reachable from the given stage by
// following transitions, including the stage itself.
func forwardClosure(def *models.WorkflowDefinition, from string) map[string]bool {
	visited := map[string]bool{from: true}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, tr := range def.TransitionsFrom(current) {
			if !visited[tr.ToStage] {
				visited[tr.ToStage] = true
				queue = append(queue, tr.ToStage)
			}
		}
	}

	return visited
}

// hasCycle runs a depth-first traversal with a recursion stack starting at
// the given stage.
func hasCycle(def *models.WorkflowDefinition, start string) bool {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string) bool

	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, tr := range def.TransitionsFrom(id) {
			if onStack[tr.ToStage] {
				return true
			}

			if !visited[tr.ToStage] && visit(tr.ToStage) {
				return true
			}
		}

		onStack[id] = false

		return false
	}

	return visit(start)
}

// Join locates the stage at which all the given branch heads reconverge: the
// breadth-first-closest stage from the first head that is forward-reachable
// from every head. Returns false when the branches never meet.
func Join(def *models.WorkflowDefinition, heads []string) (string, bool) {
	if len(heads) < 2 {
		return "", false
	}

	closures := make([]map[string]bool, len(heads))
	for i, head := range heads {
		closures[i] = forwardClosure(def, head)
	}

	// BFS from the first head so the nearest meeting point wins.
	queue := []string{heads[0]}
	visited := map[string]bool{heads[0]: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		inAll := true

		for i := 1; i < len(closures); i++ {
			if !closures[i][current] {
				inAll = false

				break
			}
		}

		if inAll && current != heads[0] {
			return current, true
		}

		for _, tr := range def.TransitionsFrom(current) {
			if !visited[tr.ToStage] {
				visited[tr.ToStage] = true
				queue = append(queue, tr.ToStage)
			}
		}
	}

	return "", false
}
