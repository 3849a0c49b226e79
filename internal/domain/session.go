package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/evalgo/memstore/internal/apperr"
)

// Session groups a sequence of conversational turns for one user within one
// tenant. Deleting a Session cascades to its Turns and their IndexRecords;
// domain itself only models the relationship, the cascade is carried out by
// the store layer.
type Session struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	Title string `json:"title,omitempty"`

	TurnCount int64 `json:"turn_count"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`
}

// NewSession constructs an open Session at version 1.
func NewSession(tenantID, userID string) (*Session, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id must not be empty")
	}
	if userID == "" {
		return nil, apperr.Validation("user_id must not be empty")
	}
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		StartedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
		Version:   1,
	}, nil
}

// RecordTurn increments the turn counter, called once per appended Turn.
func (s *Session) RecordTurn() {
	s.TurnCount++
	s.touch()
}

// End closes the session if still open. Idempotent: ending an already-ended
// session is a no-op, not an error, since a session naturally ends once.
func (s *Session) End() {
	if s.EndedAt != nil {
		return
	}
	now := time.Now().UTC()
	s.EndedAt = &now
	s.touch()
}

// SoftDelete transitions the session to Deleted. Callers are responsible for
// cascading the delete to the session's turns and index records.
func (s *Session) SoftDelete() error {
	if s.Status == StatusDeleted {
		return apperr.Validation("already deleted")
	}
	s.Status = StatusDeleted
	s.touch()
	return nil
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
	s.Version++
}

// Role identifies the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Turn is one message within a Session's conversation history. Turns are
// append-only: there is no mutator that edits Content after creation.
type Turn struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	Dehydrated bool `json:"dehydrated"`

	CreatedAt time.Time `json:"created_at"`

	Status Status `json:"status"`
}

// NewTurn constructs an append-only Turn belonging to session.
func NewTurn(tenantID, sessionID string, role Role, content string) (*Turn, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id must not be empty")
	}
	if sessionID == "" {
		return nil, apperr.Validation("session_id must not be empty")
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid turn role %q", role)
	}
	if content == "" {
		return nil, apperr.Validation("turn content must not be empty")
	}
	return &Turn{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Status:    StatusActive,
	}, nil
}

// MarkDehydrated flags the turn as having been consolidated into a Memory by
// the integrator's dehydration pass. Idempotent.
func (t *Turn) MarkDehydrated() {
	t.Dehydrated = true
}

// IndexRecord is the denormalized, retrieval-facing projection of a Memory:
// the row retrieval queries actually scan (embedding + tsvector columns live
// alongside it in storage, not in this in-memory shape).
type IndexRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	MemoryID string `json:"memory_id"`

	Kind   Kind   `json:"kind"`
	Gist   string `json:"gist"`
	Tags   StringSet `json:"tags"`
	Topics StringSet `json:"topics"`

	Importance float64   `json:"importance"`
	AccessedAt time.Time `json:"accessed_at"`
	CreatedAt  time.Time `json:"created_at"`

	Status Status `json:"status"`
}

// NewIndexRecord projects a Memory into its retrieval-facing record.
func NewIndexRecord(m *Memory) (*IndexRecord, error) {
	if m == nil {
		return nil, apperr.Validation("memory must not be nil")
	}
	return &IndexRecord{
		ID:         uuid.New().String(),
		TenantID:   m.TenantID,
		MemoryID:   m.ID,
		Kind:       m.Kind,
		Gist:       m.Gist,
		Tags:       m.Tags,
		Topics:     m.Topics,
		Importance: m.Importance,
		AccessedAt: m.AccessedAt,
		CreatedAt:  m.CreatedAt,
		Status:     m.Status,
	}, nil
}
