package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
)

func filledSession(blockCount int) *domain.PitchSession {
	s := &domain.PitchSession{
		RoleName:           "Data Analyst",
		RoleLevel:          "APS6",
		RoleDescription:    "Provide data-driven insights for policy teams.",
		RelevantExperience: "5 years analysing large datasets.",
		BlockCount:         blockCount,
		Blocks:             domain.NewBlockEnvelope(blockCount),
	}
	for i := range s.Blocks.Blocks {
		b := &s.Blocks.Blocks[i]
		b.Situation = domain.Situation{Where: "Dept. of Health, 2022", Challenge: "Fragmented testing data."}
		b.Task = domain.Task{Responsibility: "Consolidate data sources."}
		b.Action = domain.Action{Steps: []domain.ActionStep{
			{What: "Designed a schema", How: "Python and pandas"},
		}}
		b.Result = domain.Result{Outcome: "Cut reporting time.", Benefit: "Faster policy adjustments."}
	}
	return s
}

func TestValidateStep_IntroGuidanceReviewAlwaysValid(t *testing.T) {
	s := &domain.PitchSession{BlockCount: 2, Blocks: domain.NewBlockEnvelope(2)}

	assert.True(t, ValidateStep(1, 2, s).Valid)  // intro
	assert.True(t, ValidateStep(4, 2, s).Valid)  // guidance
	assert.True(t, ValidateStep(13, 2, s).Valid) // review
}

func TestValidateStep_RoleStep(t *testing.T) {
	s := &domain.PitchSession{BlockCount: 2, Blocks: domain.NewBlockEnvelope(2)}

	result := ValidateStep(2, 2, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "roleName")
	assert.Contains(t, result.Fields, "roleLevel")
	assert.Contains(t, result.Fields, "roleDescription")

	s.RoleName = "Data Analyst"
	s.RoleLevel = "APS6"
	s.RoleDescription = "Insights for policy teams."
	result = ValidateStep(2, 2, s)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Fields)
}

func TestValidateStep_WhitespaceOnlyIsBlank(t *testing.T) {
	s := filledSession(1)
	s.RoleName = " \t  " // spaces, tab, non-breaking space

	result := ValidateStep(2, 1, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "roleName")
}

func TestValidateStep_TaskConstraintsOptional(t *testing.T) {
	s := filledSession(2)
	// Task sub-step of block 0 is step 6 for blockCount=2
	s.Blocks.Blocks[0].Task.Constraints = ""

	result := ValidateStep(6, 2, s)
	assert.True(t, result.Valid)

	s.Blocks.Blocks[0].Task.Responsibility = ""
	result = ValidateStep(6, 2, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "blocks.0.task.responsibility")
}

func TestValidateStep_ActionSteps(t *testing.T) {
	s := filledSession(2)

	// Action sub-step of block 1 is step 11 for blockCount=2
	s.Blocks.Blocks[1].Action.Steps = nil
	result := ValidateStep(11, 2, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "blocks.1.action.steps")

	s.Blocks.Blocks[1].Action.Steps = []domain.ActionStep{
		{What: "Automated dashboards", How: "Tableau REST API"},
		{What: "Documented the pipeline", How: ""},
	}
	result = ValidateStep(11, 2, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "blocks.1.action.steps.1.how")

	// Outcome stays optional
	s.Blocks.Blocks[1].Action.Steps[1].How = "Confluence"
	result = ValidateStep(11, 2, s)
	assert.True(t, result.Valid)
}

func TestValidateStep_TooManyActionSteps(t *testing.T) {
	s := filledSession(1)
	steps := make([]domain.ActionStep, 6)
	for i := range steps {
		steps[i] = domain.ActionStep{What: "did", How: "how"}
	}
	s.Blocks.Blocks[0].Action.Steps = steps

	result := ValidateStep(7, 1, s) // Action sub-step of block 0
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "blocks.0.action.steps")
}

func TestValidateStep_ResultStep(t *testing.T) {
	s := filledSession(2)
	s.Blocks.Blocks[1].Result.Benefit = ""

	// Result sub-step of block 1 is step 12 for blockCount=2
	result := ValidateStep(12, 2, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "blocks.1.result.benefit")
}

func TestValidateStep_MissingBlock(t *testing.T) {
	s := filledSession(1)
	s.Blocks.Blocks = nil

	result := ValidateStep(5, 1, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "blocks.0")
}

func TestValidateAll(t *testing.T) {
	s := filledSession(3)
	result := ValidateAll(3, s)
	assert.True(t, result.Valid)

	s.RelevantExperience = ""
	s.Blocks.Blocks[2].Situation.Where = ""
	result = ValidateAll(3, s)
	require.False(t, result.Valid)
	assert.Contains(t, result.Fields, "relevantExperience")
	assert.Contains(t, result.Fields, "blocks.2.situation.where")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello", Normalize("  hello "))
	assert.Equal(t, "", Normalize("\n\t "))
	// NFC composes e + combining acute into a single rune
	assert.Equal(t, "café", Normalize("café"))
}
