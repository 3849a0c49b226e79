package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/evalgo/memstore/internal/apperr"
)

// EntityType distinguishes the kinds of node in the lightweight knowledge
// graph (single-step adjacency only, no general graph traversal).
type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
	EntityProject      EntityType = "Project"
	EntityConcept      EntityType = "Concept"
	EntityTool         EntityType = "Tool"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityPerson, EntityOrganization, EntityProject, EntityConcept, EntityTool:
		return true
	default:
		return false
	}
}

// Entity is a named node referenced by one or more memories.
type Entity struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Type  EntityType `json:"entity_type"`
	Name  string     `json:"name"`
	Alias StringSet  `json:"aliases"`

	Attributes map[string]string `json:"attributes,omitempty"`

	MentionCount int64 `json:"mention_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`
}

// NewEntity constructs an Entity at version 1.
func NewEntity(tenantID string, etype EntityType, name string) (*Entity, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id must not be empty")
	}
	if name == "" {
		return nil, apperr.Validation("entity name must not be empty")
	}
	if !etype.Valid() {
		return nil, apperr.Validation("invalid entity type %q", etype)
	}
	now := time.Now().UTC()
	return &Entity{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Type:      etype,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
		Version:   1,
	}, nil
}

// RecordMention increments the mention counter, called whenever a memory
// references this entity.
func (e *Entity) RecordMention() {
	e.MentionCount++
	e.touch()
}

// AddAlias adds an alternate name if not already present.
func (e *Entity) AddAlias(alias string) {
	if alias == "" {
		return
	}
	if e.Alias.Add(alias) {
		e.touch()
	}
}

// SetAttribute upserts a free-form attribute, bumping version only if the
// value actually changed.
func (e *Entity) SetAttribute(key, value string) error {
	if key == "" {
		return apperr.Validation("attribute key must not be empty")
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	if existing, ok := e.Attributes[key]; ok && existing == value {
		return nil
	}
	e.Attributes[key] = value
	e.touch()
	return nil
}

func (e *Entity) touch() {
	e.UpdatedAt = time.Now().UTC()
	e.Version++
}

// RelationType names the single-step edge kinds between two entities.
type RelationType string

const (
	RelationWorksWith  RelationType = "WorksWith"
	RelationPartOf     RelationType = "PartOf"
	RelationUses       RelationType = "Uses"
	RelationRelatedTo  RelationType = "RelatedTo"
	RelationReportsTo  RelationType = "ReportsTo"
)

func (t RelationType) Valid() bool {
	switch t {
	case RelationWorksWith, RelationPartOf, RelationUses, RelationRelatedTo, RelationReportsTo:
		return true
	default:
		return false
	}
}

// Relationship is a directed, single-step edge between two entities.
type Relationship struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	FromEntityID string       `json:"from_entity_id"`
	ToEntityID   string       `json:"to_entity_id"`
	Type         RelationType `json:"relation_type"`
	Strength     float64      `json:"strength"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`
}

// NewRelationship constructs a Relationship at version 1, rejecting
// self-loops the same way Memory.AddRelated does.
func NewRelationship(tenantID, fromID, toID string, rtype RelationType) (*Relationship, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id must not be empty")
	}
	if fromID == "" || toID == "" {
		return nil, apperr.Validation("from_entity_id and to_entity_id must not be empty")
	}
	if fromID == toID {
		return nil, apperr.Validation("an entity cannot relate to itself")
	}
	if !rtype.Valid() {
		return nil, apperr.Validation("invalid relation type %q", rtype)
	}
	now := time.Now().UTC()
	return &Relationship{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		FromEntityID: fromID,
		ToEntityID:   toID,
		Type:         rtype,
		Strength:     0.5,
		CreatedAt:    now,
		UpdatedAt:    now,
		Status:       StatusActive,
		Version:      1,
	}, nil
}

// Reinforce nudges the relationship strength toward 1, representing repeated
// co-observation of the two entities.
func (r *Relationship) Reinforce(delta float64) {
	next := clampUnit(r.Strength + delta)
	if next == r.Strength {
		return
	}
	r.Strength = next
	r.touch()
}

func (r *Relationship) touch() {
	r.UpdatedAt = time.Now().UTC()
	r.Version++
}
