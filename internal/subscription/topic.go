// Package subscription implements the real-time change fan-out: long-lived
// WebSocket connections subscribe to topic patterns and a process-global
// registry broadcasts each published event to every matching connection.
// Each connection owns a single-writer send channel drained by one sender
// goroutine, so delivery order per connection is publish order.
package subscription

import "strings"

// Topics are colon-separated segments, e.g. "memory:created". A pattern is
// either a literal topic, the catch-all "*", or a prefix with a trailing
// ":*" that matches exactly one additional segment.
const (
	TopicMemoryCreated  = "memory:created"
	TopicMemoryUpdated  = "memory:updated"
	TopicMemoryDeleted  = "memory:deleted"
	TopicProfileUpdated = "profile:updated"
	TopicPatternCreated = "pattern:created"
	TopicEntityCreated  = "entity:created"
)

// Matches reports whether pattern covers topic. A ":*" suffix matches one
// more segment, not a whole subtree: "memory:*" matches "memory:created"
// but not "memory:created:v2".
func Matches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if pattern == "*" {
		return topic != ""
	}
	prefix, ok := strings.CutSuffix(pattern, ":*")
	if !ok || prefix == "" {
		return false
	}
	rest, ok := strings.CutPrefix(topic, prefix+":")
	if !ok {
		return false
	}
	return rest != "" && !strings.Contains(rest, ":")
}

// IsPattern reports whether s is a wildcard pattern rather than a literal
// topic name.
func IsPattern(s string) bool {
	return s == "*" || strings.HasSuffix(s, ":*")
}
