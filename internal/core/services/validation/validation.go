// Package validation gates forward navigation: each step has a fixed list of
// required field paths checked for non-empty content. Validation is always
// re-run against the live draft, never cached.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/stepindex"
)

// Result carries the outcome of validating one step. Fields maps field paths
// to user-facing messages and is attached to the draft for UI display.
type Result struct {
	Valid  bool              `json:"valid"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (r *Result) addError(path, message string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[path] = message
	r.Valid = false
}

// ValidateStep checks the required fields for a single step. The intro,
// guidance, and review steps always validate true.
func ValidateStep(step, blockCount int, s *domain.PitchSession) Result {
	result := Result{Valid: true}
	pos := stepindex.Resolve(step, blockCount)

	switch pos.Section {
	case stepindex.SectionIntro, stepindex.SectionGuidance, stepindex.SectionReview:
		// Nothing required

	case stepindex.SectionRole:
		requireText(&result, "roleName", s.RoleName, "role name is required")
		requireText(&result, "roleLevel", s.RoleLevel, "role level is required")
		requireText(&result, "roleDescription", s.RoleDescription, "role description is required")

	case stepindex.SectionExperience:
		requireText(&result, "relevantExperience", s.RelevantExperience, "relevant experience is required")

	case stepindex.SectionExamples:
		validateExampleSubStep(&result, pos, s)
	}

	return result
}

// ValidateAll checks every input step up to the confirmation gate. Used as
// the prerequisite for submitting a generation job.
func ValidateAll(blockCount int, s *domain.PitchSession) Result {
	merged := Result{Valid: true}
	for step := 1; step <= stepindex.LastExampleStep(blockCount); step++ {
		r := ValidateStep(step, blockCount, s)
		if !r.Valid {
			for path, msg := range r.Fields {
				merged.addError(path, msg)
			}
		}
	}
	return merged
}

func validateExampleSubStep(result *Result, pos stepindex.Position, s *domain.PitchSession) {
	if pos.BlockIndex >= len(s.Blocks.Blocks) {
		result.addError(fmt.Sprintf("blocks.%d", pos.BlockIndex), "example is missing")
		return
	}
	block := s.Blocks.Blocks[pos.BlockIndex]
	prefix := fmt.Sprintf("blocks.%d", pos.BlockIndex)

	switch pos.SubStep {
	case "Situation":
		requireText(result, prefix+".situation.where", block.Situation.Where, "where and when is required")
		requireText(result, prefix+".situation.challenge", block.Situation.Challenge, "the situation or challenge is required")

	case "Task":
		requireText(result, prefix+".task.responsibility", block.Task.Responsibility, "your responsibility is required")
		// constraints is the one optional field in Task

	case "Action":
		if len(block.Action.Steps) < domain.MinActionSteps {
			result.addError(prefix+".action.steps", "at least one action step is required")
			return
		}
		if len(block.Action.Steps) > domain.MaxActionSteps {
			result.addError(prefix+".action.steps",
				fmt.Sprintf("at most %d action steps are allowed", domain.MaxActionSteps))
		}
		for i, step := range block.Action.Steps {
			stepPrefix := fmt.Sprintf("%s.action.steps.%d", prefix, i)
			requireText(result, stepPrefix+".what", step.What, "what you did is required")
			requireText(result, stepPrefix+".how", step.How, "how you did it is required")
			// outcome is optional
		}

	case "Result":
		requireText(result, prefix+".result.outcome", block.Result.Outcome, "the positive outcome is required")
		requireText(result, prefix+".result.benefit", block.Result.Benefit, "who benefited is required")
	}
}

func requireText(result *Result, path, value, message string) {
	if IsBlank(value) {
		result.addError(path, message)
	}
}

// IsBlank reports whether a free-text answer is empty after NFC
// normalization and whitespace folding. Catches answers made of non-breaking
// spaces and other whitespace lookalikes pasted from word processors.
func IsBlank(s string) bool {
	return Normalize(s) == ""
}

// Normalize applies NFC normalization and trims all leading and trailing
// unicode whitespace
func Normalize(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimFunc(s, unicode.IsSpace)
}
