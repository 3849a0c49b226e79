package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntity(t *testing.T) {
	e, err := NewEntity("tenant-a", EntityProject, "memstore")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, e.Status)
	assert.EqualValues(t, 0, e.MentionCount)
}

func TestEntity_RecordMention(t *testing.T) {
	e, err := NewEntity("tenant-a", EntityTool, "postgres")
	require.NoError(t, err)

	e.RecordMention()
	e.RecordMention()
	assert.EqualValues(t, 2, e.MentionCount)
}

func TestEntity_SetAttribute_NoOpWhenUnchanged(t *testing.T) {
	e, err := NewEntity("tenant-a", EntityPerson, "Ada")
	require.NoError(t, err)

	require.NoError(t, e.SetAttribute("role", "engineer"))
	v := e.Version
	require.NoError(t, e.SetAttribute("role", "engineer"))
	assert.EqualValues(t, v, e.Version)
}

func TestNewRelationship_RejectsSelfLoop(t *testing.T) {
	_, err := NewRelationship("tenant-a", "e1", "e1", RelationUses)
	require.Error(t, err)
}

func TestRelationship_Reinforce_Clamps(t *testing.T) {
	r, err := NewRelationship("tenant-a", "e1", "e2", RelationWorksWith)
	require.NoError(t, err)

	r.Reinforce(10)
	assert.Equal(t, 1.0, r.Strength)
}
