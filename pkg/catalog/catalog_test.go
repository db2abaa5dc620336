package catalog_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/models"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	guards := catalog.NewGuardRegistry()
	require.NoError(t, catalog.RegisterBuiltinGuards(guards))
	require.NoError(t, guards.Register("approved", catalog.ValueTruthy("approved")))

	return catalog.New(slog.Default(), guards)
}

func validDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:   "claims",
		Name: "Claims",
		Stages: []*models.Stage{
			{ID: "intake", Name: "Intake", Capability: "intake"},
			{ID: "assess", Name: "Assess", Capability: "assess"},
			{ID: "payout", Name: "Payout", Capability: "payout"},
		},
		Transitions: []*models.Transition{
			{FromStage: "intake", ToStage: "assess"},
			{FromStage: "assess", ToStage: "payout"},
		},
		InitialStage: "intake",
		FinalStages:  []string{"payout"},
	}
}

func TestCatalog_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()

	result := cat.Register(def)
	require.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.False(t, def.RegisteredAt.IsZero())

	found, err := cat.Lookup("claims")
	require.NoError(t, err)
	assert.Equal(t, "Claims", found.Name)

	_, err = cat.Lookup("unknown")
	require.ErrorIs(t, err, catalog.ErrDefinitionNotFound)
}

func TestCatalog_RegisterAppliesDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()
	def.Stages[1].Retry = models.RetryPolicy{MaxAttempts: 7, Multiplier: 1.5}

	result := cat.Register(def)
	require.True(t, result.Valid)

	registered, err := cat.Lookup("claims")
	require.NoError(t, err)

	stage, ok := registered.StageByID("intake")
	require.True(t, ok)
	assert.Equal(t, models.DefaultRetryPolicy(), stage.Retry)

	custom, ok := registered.StageByID("assess")
	require.True(t, ok)
	assert.Equal(t, 7, custom.Retry.MaxAttempts)
}

func TestCatalog_RegisterRejectsMissingFields(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)

	result := cat.Register(&models.WorkflowDefinition{ID: "broken"})
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestCatalog_RegisterRejectsReferentialErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(def *models.WorkflowDefinition)
	}{
		{
			name:   "initial stage not in stage set",
			mutate: func(def *models.WorkflowDefinition) { def.InitialStage = "ghost" },
		},
		{
			name:   "final stage not in stage set",
			mutate: func(def *models.WorkflowDefinition) { def.FinalStages = []string{"ghost"} },
		},
		{
			name: "duplicate stage id",
			mutate: func(def *models.WorkflowDefinition) {
				def.Stages = append(def.Stages, &models.Stage{ID: "intake", Name: "Dup", Capability: "x"})
			},
		},
		{
			name: "transition references unknown stage",
			mutate: func(def *models.WorkflowDefinition) {
				def.Transitions = append(def.Transitions, &models.Transition{FromStage: "intake", ToStage: "ghost"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cat := newTestCatalog(t)
			def := validDefinition()
			tt.mutate(def)

			result := cat.Register(def)
			assert.False(t, result.Valid)
			assert.NotEmpty(t, result.Errors)

			_, err := cat.Lookup(def.ID)
			assert.ErrorIs(t, err, catalog.ErrDefinitionNotFound,
				"rejected definitions must not be stored")
		})
	}
}

func TestCatalog_RegisterWarnsOnUnreachableStage(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()
	def.Stages = append(def.Stages, &models.Stage{ID: "orphan", Name: "Orphan", Capability: "orphan"})

	result := cat.Register(def)
	require.True(t, result.Valid, "unreachable stages warn, not fail")
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "orphan")
}

func TestCatalog_RegisterWarnsOnCycle(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()
	def.Transitions = append(def.Transitions, &models.Transition{FromStage: "assess", ToStage: "intake", Guard: "never"})

	result := cat.Register(def)
	require.True(t, result.Valid, "cycles warn, not fail")
	assert.Contains(t, result.Warnings, "workflow graph contains a cycle")
}

func TestCatalog_NextStageFirstMatchWins(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()
	def.Transitions = []*models.Transition{
		{FromStage: "intake", ToStage: "payout", Guard: "approved"},
		{FromStage: "intake", ToStage: "assess"},
		{FromStage: "assess", ToStage: "payout"},
	}
	require.True(t, cat.Register(def).Valid)

	next, err := cat.NextStage(def, "intake", models.ExecutionContext{Values: map[string]any{"approved": true}})
	require.NoError(t, err)
	assert.Equal(t, "payout", next)

	next, err = cat.NextStage(def, "intake", models.ExecutionContext{Values: map[string]any{"approved": false}})
	require.NoError(t, err)
	assert.Equal(t, "assess", next)
}

func TestCatalog_NextStageSkipsUnknownGuard(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()
	def.Transitions = []*models.Transition{
		{FromStage: "intake", ToStage: "payout", Guard: "not-registered"},
		{FromStage: "intake", ToStage: "assess"},
		{FromStage: "assess", ToStage: "payout"},
	}
	require.True(t, cat.Register(def).Valid)

	next, err := cat.NextStage(def, "intake", models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "assess", next, "unknown guard skips the transition instead of failing")
}

func TestCatalog_NextStageNoMatch(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()
	require.True(t, cat.Register(def).Valid)

	_, err := cat.NextStage(def, "payout", models.ExecutionContext{})
	require.ErrorIs(t, err, catalog.ErrNoNextStage)
}

func TestCatalog_BranchTargetsOnlyUnguarded(t *testing.T) {
	t.Parallel()

	cat := newTestCatalog(t)
	def := validDefinition()
	def.Transitions = []*models.Transition{
		{FromStage: "intake", ToStage: "assess"},
		{FromStage: "intake", ToStage: "payout"},
		{FromStage: "intake", ToStage: "payout", Guard: "approved"},
		{FromStage: "assess", ToStage: "payout"},
	}
	require.True(t, cat.Register(def).Valid)

	targets := cat.BranchTargets(def, "intake")
	assert.Equal(t, []string{"assess", "payout"}, targets)
}

func TestJoin_FindsNearestConvergence(t *testing.T) {
	t.Parallel()

	def := &models.WorkflowDefinition{
		ID:   "fan",
		Name: "Fan",
		Stages: []*models.Stage{
			{ID: "start", Name: "S", Capability: "s"},
			{ID: "left", Name: "L", Capability: "l"},
			{ID: "right", Name: "R", Capability: "r"},
			{ID: "merge", Name: "M", Capability: "m"},
			{ID: "end", Name: "E", Capability: "e"},
		},
		Transitions: []*models.Transition{
			{FromStage: "start", ToStage: "left"},
			{FromStage: "start", ToStage: "right"},
			{FromStage: "left", ToStage: "merge"},
			{FromStage: "right", ToStage: "merge"},
			{FromStage: "merge", ToStage: "end"},
		},
		InitialStage: "start",
		FinalStages:  []string{"end"},
	}

	join, found := catalog.Join(def, []string{"left", "right"})
	require.True(t, found)
	assert.Equal(t, "merge", join)
}

func TestJoin_NoConvergence(t *testing.T) {
	t.Parallel()

	def := &models.WorkflowDefinition{
		ID:   "split",
		Name: "Split",
		Stages: []*models.Stage{
			{ID: "start", Name: "S", Capability: "s"},
			{ID: "left", Name: "L", Capability: "l"},
			{ID: "right", Name: "R", Capability: "r"},
		},
		Transitions: []*models.Transition{
			{FromStage: "start", ToStage: "left"},
			{FromStage: "start", ToStage: "right"},
		},
		InitialStage: "start",
		FinalStages:  []string{"left", "right"},
	}

	_, found := catalog.Join(def, []string{"left", "right"})
	assert.False(t, found)
}

func TestGuardRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	guards := catalog.NewGuardRegistry()

	require.NoError(t, guards.Register("g", catalog.ValueTruthy("x")))
	require.Error(t, guards.Register("g", catalog.ValueTruthy("x")))
	require.Error(t, guards.Register("", catalog.ValueTruthy("x")))
}

func TestValueTruthy(t *testing.T) {
	t.Parallel()

	guard := catalog.ValueTruthy("flag")

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"true bool", true, true},
		{"false bool", false, false},
		{"non-empty string", "yes", true},
		{"empty string", "", false},
		{"non-zero number", float64(3), true},
		{"zero number", float64(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := guard(models.ExecutionContext{Values: map[string]any{"flag": tt.value}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	missing, err := guard(models.ExecutionContext{Values: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, missing)
}
