package flow

import (
	"strconv"
	"strings"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// setField applies a single field mutation addressed by a dotted path:
//
//	roleName, roleLevel, roleDescription, yearsExperience,
//	relevantExperience, wordLimit, generatedPitch
//	blocks.<i>.situation.where | blocks.<i>.situation.challenge
//	blocks.<i>.task.responsibility | blocks.<i>.task.constraints
//	blocks.<i>.action.steps              (integer value resizes the step list)
//	blocks.<i>.action.steps.<j>.what | .how | .outcome
//	blocks.<i>.result.outcome | blocks.<i>.result.benefit
//
// ownerId and the job-correlation fields are deliberately not addressable.
func setField(s *domain.PitchSession, path, value string) error {
	switch path {
	case "roleName":
		s.RoleName = value
		return nil
	case "roleLevel":
		s.RoleLevel = value
		return nil
	case "roleDescription":
		s.RoleDescription = value
		return nil
	case "relevantExperience":
		s.RelevantExperience = value
		return nil
	case "generatedPitch":
		s.GeneratedPitch = value
		return nil
	case "yearsExperience":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return apperrors.BadRequest("yearsExperience must be a non-negative integer")
		}
		s.YearsExperience = n
		return nil
	case "wordLimit":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < domain.MinWordLimit || n > domain.MaxWordLimit {
			return apperrors.BadRequest("wordLimit must be an integer between 400 and 1000")
		}
		s.WordLimit = n
		return nil
	}

	if strings.HasPrefix(path, "blocks.") {
		return setBlockField(s, path, value)
	}

	return apperrors.InvalidFieldPath(path)
}

func setBlockField(s *domain.PitchSession, path, value string) error {
	parts := strings.Split(path, ".")
	if len(parts) < 3 {
		return apperrors.InvalidFieldPath(path)
	}

	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 || idx >= len(s.Blocks.Blocks) {
		return apperrors.InvalidFieldPath(path)
	}
	block := &s.Blocks.Blocks[idx]

	switch parts[2] {
	case "situation":
		if len(parts) != 4 {
			return apperrors.InvalidFieldPath(path)
		}
		switch parts[3] {
		case "where":
			block.Situation.Where = value
		case "challenge":
			block.Situation.Challenge = value
		default:
			return apperrors.InvalidFieldPath(path)
		}
		return nil

	case "task":
		if len(parts) != 4 {
			return apperrors.InvalidFieldPath(path)
		}
		switch parts[3] {
		case "responsibility":
			block.Task.Responsibility = value
		case "constraints":
			block.Task.Constraints = value
		default:
			return apperrors.InvalidFieldPath(path)
		}
		return nil

	case "action":
		return setActionField(block, parts, path, value)

	case "result":
		if len(parts) != 4 {
			return apperrors.InvalidFieldPath(path)
		}
		switch parts[3] {
		case "outcome":
			block.Result.Outcome = value
		case "benefit":
			block.Result.Benefit = value
		default:
			return apperrors.InvalidFieldPath(path)
		}
		return nil
	}

	return apperrors.InvalidFieldPath(path)
}

func setActionField(block *domain.StarBlock, parts []string, path, value string) error {
	if len(parts) < 4 || parts[3] != "steps" {
		return apperrors.InvalidFieldPath(path)
	}

	// blocks.<i>.action.steps with an integer value resizes the step list,
	// preserving existing steps by index
	if len(parts) == 4 {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < domain.MinActionSteps || n > domain.MaxActionSteps {
			return apperrors.BadRequest("action step count must be between 1 and 5")
		}
		for len(block.Action.Steps) < n {
			block.Action.Steps = append(block.Action.Steps, domain.ActionStep{})
		}
		block.Action.Steps = block.Action.Steps[:n]
		return nil
	}

	if len(parts) != 6 {
		return apperrors.InvalidFieldPath(path)
	}

	j, err := strconv.Atoi(parts[4])
	if err != nil || j < 0 || j >= len(block.Action.Steps) {
		return apperrors.InvalidFieldPath(path)
	}
	step := &block.Action.Steps[j]

	switch parts[5] {
	case "what":
		step.What = value
	case "how":
		step.How = value
	case "outcome":
		step.Outcome = value
	default:
		return apperrors.InvalidFieldPath(path)
	}
	return nil
}
