package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPattern(t *testing.T) {
	p, err := NewPattern("tenant-a", "user-1", PatternWorkflow, "deploy-on-green")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, p.Status)
	assert.EqualValues(t, 1, p.Version)
}

func TestNewPattern_RejectsInvalidType(t *testing.T) {
	_, err := NewPattern("tenant-a", "user-1", PatternType("bogus"), "name")
	require.Error(t, err)
}

func TestPattern_RecordOutcome_TracksCounts(t *testing.T) {
	p, err := NewPattern("tenant-a", "user-1", PatternBestPractice, "use-context")
	require.NoError(t, err)

	p.RecordOutcome(1.0)
	p.RecordOutcome(1.0)
	p.RecordOutcome(0.0)

	assert.EqualValues(t, 2, p.SuccessCount)
	assert.EqualValues(t, 1, p.FailureCount)
	assert.InDelta(t, 0.667, p.AvgOutcome, 0.01)
}

func TestPattern_RecordOutcome_ConfidenceGrowsWithSamples(t *testing.T) {
	p, err := NewPattern("tenant-a", "user-1", PatternSkill, "refactor-safely")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		p.RecordOutcome(1.0)
	}
	assert.Greater(t, p.Confidence, 0.7)
	assert.LessOrEqual(t, p.Confidence, 1.0)
}

func TestPattern_ArchiveRestore(t *testing.T) {
	p, err := NewPattern("tenant-a", "user-1", PatternCommonError, "nil-deref")
	require.NoError(t, err)

	require.NoError(t, p.Archive())
	require.Error(t, p.Archive())
	require.NoError(t, p.Restore())
	assert.Equal(t, StatusActive, p.Status)
}
