package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		topic   string
		want    bool
	}{
		{"exact", "memory:created", "memory:created", true},
		{"exact mismatch", "memory:created", "memory:updated", false},
		{"wildcard one segment", "memory:*", "memory:created", true},
		{"wildcard other family", "memory:*", "profile:updated", false},
		{"wildcard not recursive", "memory:*", "memory:created:v2", false},
		{"wildcard needs a segment", "memory:*", "memory:", false},
		{"wildcard prefix only", "memory:*", "memory", false},
		{"catch-all", "*", "memory:created", true},
		{"catch-all single segment", "*", "heartbeat", true},
		{"bare wildcard suffix", ":*", "anything", false},
		{"prefix without separator", "mem:*", "memory:created", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(tc.pattern, tc.topic))
		})
	}
}

func TestIsPattern(t *testing.T) {
	assert.True(t, IsPattern("*"))
	assert.True(t, IsPattern("memory:*"))
	assert.False(t, IsPattern("memory:created"))
}
