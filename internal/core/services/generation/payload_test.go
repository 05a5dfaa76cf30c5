package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
)

func TestAgentVersionFor(t *testing.T) {
	assert.Equal(t, "v1_star", AgentVersionFor(1))
	assert.Equal(t, "v2_star", AgentVersionFor(2))
	assert.Equal(t, "v3_star", AgentVersionFor(3))
	assert.Equal(t, "v4_star", AgentVersionFor(4))

	// Larger sessions reuse the widest available version
	assert.Equal(t, "v4_star", AgentVersionFor(5))
	assert.Equal(t, "v4_star", AgentVersionFor(10))

	assert.Equal(t, "v1_star", AgentVersionFor(0))
}

func TestBuildPitchRequest(t *testing.T) {
	s := &domain.PitchSession{
		RoleName:           "Data Analyst",
		RoleLevel:          "APS6",
		RoleDescription:    "Insights for policy teams.",
		YearsExperience:    5,
		WordLimit:          650,
		RelevantExperience: "5 years analysing datasets.",
		BlockCount:         3,
		Blocks:             domain.NewBlockEnvelope(3),
	}

	req := BuildPitchRequest(s)
	assert.Equal(t, "Data Analyst", req.RoleName)
	assert.Equal(t, 650, req.PitchWordLimit)
	assert.Equal(t, "v3_star", req.AgentVersion)
	assert.Len(t, req.StarExamples, 3)
}

func TestGuidanceCacheKey(t *testing.T) {
	a := GuidanceRequest{RoleName: "Data Analyst", RoleLevel: "APS6", RoleDescription: "desc", YearsExperience: 5}
	b := a
	c := a
	c.RoleLevel = "EL1"

	assert.Equal(t, GuidanceCacheKey(a), GuidanceCacheKey(b))
	assert.NotEqual(t, GuidanceCacheKey(a), GuidanceCacheKey(c))
	assert.Contains(t, GuidanceCacheKey(a), "guidance:")
}
