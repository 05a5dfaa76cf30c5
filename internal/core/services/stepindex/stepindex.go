// Package stepindex maps the user-chosen example count to wizard geometry.
// Everything here is a pure function of an explicit block count; nothing is
// cached, so every caller sees the same mapping after a resize.
package stepindex

import "fmt"

// Section identifies one region of the wizard
type Section string

const (
	SectionIntro      Section = "intro"
	SectionRole       Section = "role"
	SectionExperience Section = "experience"
	SectionGuidance   Section = "guidance"
	SectionExamples   Section = "examples"
	SectionReview     Section = "review"
)

// Wizard geometry: four fixed prefix steps, four sub-steps per STAR example,
// one trailing review step.
const (
	FixedPrefixSteps = 4
	StepsPerBlock    = 4
)

// SubStepLabels are the per-example sub-steps, in order
var SubStepLabels = [StepsPerBlock]string{"Situation", "Task", "Action", "Result"}

// Position locates a step inside the wizard. BlockIndex is -1 and SubStep
// empty outside the examples section.
type Position struct {
	Section    Section
	BlockIndex int
	SubStep    string
}

// TotalSteps returns the step count for a given example count
func TotalSteps(blockCount int) int {
	return FixedPrefixSteps + blockCount*StepsPerBlock + 1
}

// LastExampleStep returns the final repeating-block step, the one guarded by
// the confirmation gate before submission.
func LastExampleStep(blockCount int) int {
	return FixedPrefixSteps + blockCount*StepsPerBlock
}

// Resolve maps a step number to its section, example index, and sub-step.
// It is total: out-of-range steps clamp to the nearest boundary, and the
// upper boundary agrees with TotalSteps.
func Resolve(step, blockCount int) Position {
	if step < 1 {
		step = 1
	}

	switch step {
	case 1:
		return Position{Section: SectionIntro, BlockIndex: -1}
	case 2:
		return Position{Section: SectionRole, BlockIndex: -1}
	case 3:
		return Position{Section: SectionExperience, BlockIndex: -1}
	case 4:
		return Position{Section: SectionGuidance, BlockIndex: -1}
	}

	if step > LastExampleStep(blockCount) {
		return Position{Section: SectionReview, BlockIndex: -1}
	}

	offset := step - FixedPrefixSteps - 1
	return Position{
		Section:    SectionExamples,
		BlockIndex: offset / StepsPerBlock,
		SubStep:    SubStepLabels[offset%StepsPerBlock],
	}
}

// FirstStepOfSection is the inverse used for jump navigation: the fixed
// sections map to their constant step, the examples section to its first
// step, and review to the terminal step.
func FirstStepOfSection(section Section, blockCount int) (int, error) {
	switch section {
	case SectionIntro:
		return 1, nil
	case SectionRole:
		return 2, nil
	case SectionExperience:
		return 3, nil
	case SectionGuidance:
		return 4, nil
	case SectionExamples:
		return FixedPrefixSteps + 1, nil
	case SectionReview:
		return TotalSteps(blockCount), nil
	}
	return 0, fmt.Errorf("unknown section: %s", section)
}

// Label renders a human-readable step label for UI display
func Label(step, blockCount int) string {
	pos := Resolve(step, blockCount)
	switch pos.Section {
	case SectionIntro:
		return "Getting started"
	case SectionRole:
		return "Role details"
	case SectionExperience:
		return "Your experience"
	case SectionGuidance:
		return "Guidance"
	case SectionReview:
		return "Review"
	default:
		return fmt.Sprintf("Example %d: %s", pos.BlockIndex+1, pos.SubStep)
	}
}

// IsValidSection reports whether s names a wizard section
func IsValidSection(s Section) bool {
	switch s {
	case SectionIntro, SectionRole, SectionExperience, SectionGuidance, SectionExamples, SectionReview:
		return true
	}
	return false
}
