package postgres

import (
	"encoding/json"
	"time"
)

// GORM row models. These mirror the domain types field-for-field but store
// sets and nested slices as JSONB columns, keeping anything without a clean
// relational shape out of join tables.

type patternRow struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"index:idx_pattern_tenant"`
	UserID       string
	PatternType  string
	Name         string
	Description  string
	Problem      string
	Solution     string
	Trigger      string
	PatternCtx   string          `gorm:"column:context"`
	Examples     json.RawMessage `gorm:"type:jsonb"`
	SuccessCount int64
	FailureCount int64
	AvgOutcome   float64
	Confidence   float64
	IsPublic     bool
	Tags         json.RawMessage `gorm:"type:jsonb"`
	Status       string          `gorm:"index:idx_pattern_tenant"`
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (patternRow) TableName() string { return "patterns" }

type profileRow struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"uniqueIndex:idx_profile_tenant_user"`
	UserID       string `gorm:"uniqueIndex:idx_profile_tenant_user"`
	Identity     string
	Interests    json.RawMessage `gorm:"type:jsonb"`
	Tools        json.RawMessage `gorm:"type:jsonb"`
	WorkingHours json.RawMessage `gorm:"type:jsonb;column:working_hours"`
	Status       string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (profileRow) TableName() string { return "profiles" }

type factRow struct {
	ID         string `gorm:"primaryKey"`
	ProfileID  string `gorm:"index:idx_fact_profile"`
	Text       string
	Category   string
	Confidence float64
	Verified   bool
	VerifiedAt *time.Time
	RecordedAt time.Time
}

func (factRow) TableName() string { return "profile_facts" }

type preferenceRow struct {
	ProfileID string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	Value     string
	Reason    string
}

func (preferenceRow) TableName() string { return "profile_preferences" }

type entityRow struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"index:idx_entity_tenant_name"`
	EntityType   string
	Name         string `gorm:"index:idx_entity_tenant_name"`
	Aliases      json.RawMessage `gorm:"type:jsonb"`
	Attributes   json.RawMessage `gorm:"type:jsonb"`
	MentionCount int64
	Status       string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (entityRow) TableName() string { return "entities" }

type relationshipRow struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"index:idx_rel_tenant"`
	FromEntityID string `gorm:"index:idx_rel_from"`
	ToEntityID   string `gorm:"index:idx_rel_to"`
	RelationType string
	Strength     float64
	Status       string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (relationshipRow) TableName() string { return "relationships" }

type sessionRow struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"index:idx_session_tenant_user"`
	UserID    string `gorm:"index:idx_session_tenant_user"`
	Title     string
	TurnCount int64
	Status    string
	Version   int64
	StartedAt time.Time
	EndedAt   *time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

type turnRow struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"index:idx_turn_session"`
	SessionID  string `gorm:"index:idx_turn_session"`
	Role       string
	Content    string
	Dehydrated bool
	Status     string
	CreatedAt  time.Time
}

func (turnRow) TableName() string { return "turns" }
