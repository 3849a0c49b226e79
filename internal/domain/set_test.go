package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSet_AddDeduplicatesAndPreservesOrder(t *testing.T) {
	s := NewStringSet()
	assert.True(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("a"))
	assert.Equal(t, []string{"a", "b"}, s.Values())
}

func TestStringSet_Remove(t *testing.T) {
	s := NewStringSet("a", "b", "c")
	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.Values())
}

func TestStringSet_JSONRoundTrip(t *testing.T) {
	s := NewStringSet("x", "y", "x")
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["x","y"]`, string(data))

	var out StringSet
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, []string{"x", "y"}, out.Values())
}

func TestStringSet_NilSafe(t *testing.T) {
	var s *StringSet
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("a"))
	assert.Nil(t, s.Values())
}
