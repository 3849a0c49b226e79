package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfile(t *testing.T) {
	p, err := NewProfile("tenant-a", "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, p.Status)
	assert.EqualValues(t, 1, p.Version)
}

func TestProfile_SetPreference_UpsertsByKey(t *testing.T) {
	p, err := NewProfile("tenant-a", "user-1")
	require.NoError(t, err)

	require.NoError(t, p.SetPreference("theme", "dark", "user said so"))
	require.NoError(t, p.SetPreference("theme", "light", "changed mind"))

	require.Len(t, p.Preferences, 1)
	assert.Equal(t, "light", p.Preferences[0].Value)
}

func TestProfile_SetPreference_NoOpOnIdenticalValue(t *testing.T) {
	p, err := NewProfile("tenant-a", "user-1")
	require.NoError(t, err)

	require.NoError(t, p.SetPreference("theme", "dark", "reason"))
	v := p.Version
	require.NoError(t, p.SetPreference("theme", "dark", "reason"))
	assert.EqualValues(t, v, p.Version)
}

func TestProfile_AddFactAndVerify(t *testing.T) {
	p, err := NewProfile("tenant-a", "user-1")
	require.NoError(t, err)

	fact, err := p.AddFact("prefers async standups", "work", 0.6)
	require.NoError(t, err)
	assert.False(t, fact.Verified)

	require.NoError(t, p.VerifyFact(fact.ID))
	assert.True(t, p.Facts[0].Verified)

	// re-verifying is idempotent, not an error
	require.NoError(t, p.VerifyFact(fact.ID))
}

func TestProfile_VerifyFact_UnknownID(t *testing.T) {
	p, err := NewProfile("tenant-a", "user-1")
	require.NoError(t, err)

	err = p.VerifyFact("does-not-exist")
	require.Error(t, err)
}

func TestProfile_WorkingHours_ReplacesByDay(t *testing.T) {
	p, err := NewProfile("tenant-a", "user-1")
	require.NoError(t, err)

	require.NoError(t, p.SetWorkingHours("Monday", "09:00", "17:00"))
	require.NoError(t, p.SetWorkingHours("Monday", "10:00", "18:00"))

	require.Len(t, p.Hours, 1)
	assert.Equal(t, "10:00", p.Hours[0].Start)
}
