package generation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
)

// maxVersionedExamples is the largest example count with a dedicated agent
// version; larger sessions fall back to the widest version.
const maxVersionedExamples = 4

// AgentVersionFor selects the agent workflow version by example count
func AgentVersionFor(blockCount int) string {
	if blockCount > maxVersionedExamples {
		blockCount = maxVersionedExamples
	}
	if blockCount < 1 {
		blockCount = 1
	}
	return fmt.Sprintf("v%d_star", blockCount)
}

// BuildPitchRequest assembles the agent payload from a session snapshot
func BuildPitchRequest(s *domain.PitchSession) PitchRequest {
	return PitchRequest{
		RoleName:           s.RoleName,
		RoleLevel:          s.RoleLevel,
		RoleDescription:    s.RoleDescription,
		YearsExperience:    s.YearsExperience,
		PitchWordLimit:     s.WordLimit,
		RelevantExperience: s.RelevantExperience,
		StarExamples:       s.Blocks.Blocks,
		AgentVersion:       AgentVersionFor(s.BlockCount),
	}
}

// BuildGuidanceRequest assembles the advisory payload from a session snapshot
func BuildGuidanceRequest(s *domain.PitchSession) GuidanceRequest {
	return GuidanceRequest{
		RoleName:        s.RoleName,
		RoleLevel:       s.RoleLevel,
		RoleDescription: s.RoleDescription,
		YearsExperience: s.YearsExperience,
	}
}

// GuidanceCacheKey fingerprints the guidance inputs so identical role details
// reuse a cached suggestion
func GuidanceCacheKey(req GuidanceRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", req.RoleName, req.RoleLevel, req.RoleDescription, req.YearsExperience)
	return "guidance:" + hex.EncodeToString(h.Sum(nil))[:32]
}
