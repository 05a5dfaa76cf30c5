package stepindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalSteps_AllBlockCounts(t *testing.T) {
	for n := 1; n <= 10; n++ {
		assert.Equal(t, 4+n*4+1, TotalSteps(n), "blockCount=%d", n)
	}
}

func TestResolve_TotalAndUnique(t *testing.T) {
	for n := 1; n <= 10; n++ {
		seen := make(map[string]int)
		for step := 1; step <= TotalSteps(n); step++ {
			pos := Resolve(step, n)
			key := fmt.Sprintf("%s/%d/%s", pos.Section, pos.BlockIndex, pos.SubStep)
			prev, dup := seen[key]
			require.False(t, dup, "step %d and %d resolve to the same position for blockCount=%d", prev, step, n)
			seen[key] = step
		}
	}
}

func TestResolve_TwoBlocks(t *testing.T) {
	require.Equal(t, 13, TotalSteps(2))

	pos := Resolve(5, 2)
	assert.Equal(t, SectionExamples, pos.Section)
	assert.Equal(t, 0, pos.BlockIndex)
	assert.Equal(t, "Situation", pos.SubStep)

	pos = Resolve(12, 2)
	assert.Equal(t, SectionExamples, pos.Section)
	assert.Equal(t, 1, pos.BlockIndex)
	assert.Equal(t, "Result", pos.SubStep)

	pos = Resolve(13, 2)
	assert.Equal(t, SectionReview, pos.Section)
	assert.Equal(t, -1, pos.BlockIndex)
}

func TestResolve_FixedPrefix(t *testing.T) {
	tests := []struct {
		step    int
		section Section
	}{
		{1, SectionIntro},
		{2, SectionRole},
		{3, SectionExperience},
		{4, SectionGuidance},
	}

	for _, tt := range tests {
		pos := Resolve(tt.step, 5)
		assert.Equal(t, tt.section, pos.Section)
		assert.Equal(t, -1, pos.BlockIndex)
		assert.Empty(t, pos.SubStep)
	}
}

func TestResolve_OutOfRange(t *testing.T) {
	// Below range clamps to intro, beyond range maps to review
	assert.Equal(t, SectionIntro, Resolve(0, 3).Section)
	assert.Equal(t, SectionIntro, Resolve(-7, 3).Section)
	assert.Equal(t, SectionReview, Resolve(99, 3).Section)
}

func TestResolve_AgreesWithTotalStepsOnBoundary(t *testing.T) {
	for n := 1; n <= 10; n++ {
		pos := Resolve(TotalSteps(n), n)
		assert.Equal(t, SectionReview, pos.Section, "blockCount=%d", n)

		pos = Resolve(TotalSteps(n)-1, n)
		assert.Equal(t, SectionExamples, pos.Section, "blockCount=%d", n)
		assert.Equal(t, n-1, pos.BlockIndex)
		assert.Equal(t, "Result", pos.SubStep)
	}
}

func TestFirstStepOfSection(t *testing.T) {
	tests := []struct {
		section Section
		want    int
	}{
		{SectionIntro, 1},
		{SectionRole, 2},
		{SectionExperience, 3},
		{SectionGuidance, 4},
		{SectionExamples, 5},
		{SectionReview, 13},
	}

	for _, tt := range tests {
		got, err := FirstStepOfSection(tt.section, 2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "section=%s", tt.section)
	}

	_, err := FirstStepOfSection("nonsense", 2)
	assert.Error(t, err)
}

func TestFirstStepOfSection_RoundTrips(t *testing.T) {
	for n := 1; n <= 10; n++ {
		for _, section := range []Section{SectionIntro, SectionRole, SectionExperience, SectionGuidance, SectionExamples, SectionReview} {
			step, err := FirstStepOfSection(section, n)
			require.NoError(t, err)
			assert.Equal(t, section, Resolve(step, n).Section, "section=%s blockCount=%d", section, n)
		}
	}
}

func TestLastExampleStep(t *testing.T) {
	assert.Equal(t, 12, LastExampleStep(2))
	for n := 1; n <= 10; n++ {
		assert.Equal(t, TotalSteps(n)-1, LastExampleStep(n))
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Getting started", Label(1, 2))
	assert.Equal(t, "Example 1: Situation", Label(5, 2))
	assert.Equal(t, "Example 2: Result", Label(12, 2))
	assert.Equal(t, "Review", Label(13, 2))
}
