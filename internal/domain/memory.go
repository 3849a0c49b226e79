package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evalgo/memstore/internal/apperr"
)

// TurnRef traces a dehydrated memory back to the turn it was produced from.
type TurnRef struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
}

// Memory is a content-addressed unit of long-term recall.
type Memory struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	Kind Kind `json:"kind"`

	Content     string `json:"content"`
	Gist        string `json:"gist,omitempty"`
	FullSummary string `json:"full_summary,omitempty"`

	Importance float64 `json:"importance"`
	Confidence float64 `json:"confidence"`

	AccessedAt time.Time  `json:"accessed_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	Tags      StringSet `json:"tags"`
	Topics    StringSet `json:"topics"`
	Keywords  StringSet `json:"keywords"`
	Embedding []float32 `json:"embedding,omitempty"`

	Source      string `json:"source,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	RelatedIDs  StringSet `json:"related_ids"`
	Dehydrated  *TurnRef  `json:"dehydrated_from,omitempty"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`
}

// NewMemory constructs a Memory in the Active status with version 1 and
// importance and confidence of 0.5, rejecting empty content.
func NewMemory(tenantID, userID string, kind Kind, content string) (*Memory, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id must not be empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content must not be empty")
	}
	if !kind.Valid() {
		return nil, apperr.Validation("invalid memory kind %q", kind)
	}
	now := time.Now().UTC()
	return &Memory{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		UserID:     userID,
		Kind:       kind,
		Content:    content,
		Importance: 0.5,
		Confidence: 0.5,
		AccessedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     StatusActive,
		Version:    1,
	}, nil
}

// SetImportance clamps and applies a new importance value, bumping version
// only if the clamped value actually changes.
func (m *Memory) SetImportance(v float64) {
	v = clampUnit(v)
	if v == m.Importance {
		return
	}
	m.Importance = v
	m.touch()
}

// SetConfidence clamps and applies a new confidence value.
func (m *Memory) SetConfidence(v float64) {
	v = clampUnit(v)
	if v == m.Confidence {
		return
	}
	m.Confidence = v
	m.touch()
}

// SetGist replaces the gist, bumping version only if it actually changes.
// Never touches Content: the integrator's summarization pass relies on this
// to leave the raw content untouched.
func (m *Memory) SetGist(gist string) {
	if gist == m.Gist {
		return
	}
	m.Gist = gist
	m.touch()
}

// AddTag adds a tag if not already present, bumping version on change.
func (m *Memory) AddTag(tag string) {
	if tag == "" {
		return
	}
	if m.Tags.Add(tag) {
		m.touch()
	}
}

// AddTopic adds a topic if not already present.
func (m *Memory) AddTopic(topic string) {
	if topic == "" {
		return
	}
	if m.Topics.Add(topic) {
		m.touch()
	}
}

// AddKeyword adds a keyword if not already present.
func (m *Memory) AddKeyword(keyword string) {
	if keyword == "" {
		return
	}
	if m.Keywords.Add(keyword) {
		m.touch()
	}
}

// AddRelated links another memory by ID; self-references are rejected.
func (m *Memory) AddRelated(id string) error {
	if id == m.ID {
		return apperr.Validation("a memory cannot relate to itself")
	}
	if id == "" {
		return apperr.Validation("related id must not be empty")
	}
	if m.RelatedIDs.Add(id) {
		m.touch()
	}
	return nil
}

// Archive transitions Active -> Archived. Calling it twice on an already
// archived memory is rejected rather than treated as a no-op.
func (m *Memory) Archive() error {
	if m.Status == StatusArchived {
		return apperr.Validation("already archived")
	}
	if m.Status == StatusDeleted {
		return apperr.Validation("cannot archive a deleted memory")
	}
	m.Status = StatusArchived
	m.touch()
	return nil
}

// Restore transitions Archived -> Active. Fields other than status/updated_at
// /version are left untouched.
func (m *Memory) Restore() error {
	if m.Status != StatusArchived {
		return apperr.Validation("only archived memories can be restored")
	}
	m.Status = StatusActive
	m.touch()
	return nil
}

// SoftDelete transitions to Deleted, preserving the row for audit.
func (m *Memory) SoftDelete() error {
	if m.Status == StatusDeleted {
		return apperr.Validation("already deleted")
	}
	m.Status = StatusDeleted
	m.touch()
	return nil
}

// Touch records an access without bumping version (reads never version-bump).
func (m *Memory) Touch() {
	m.AccessedAt = time.Now().UTC()
}

// touch updates UpdatedAt and bumps the version; called by every mutator that
// actually changed a field.
func (m *Memory) touch() {
	m.UpdatedAt = time.Now().UTC()
	m.Version++
}

// AccessedWithin reports whether AccessedAt falls within d of now.
func (m *Memory) AccessedWithin(d time.Duration, now time.Time) bool {
	return now.Sub(m.AccessedAt) <= d
}

// Expired reports whether the memory has passed its expiry, if any.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}
