package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/evalgo/memstore/internal/apperr"
)

// PatternType distinguishes the kinds of recurring behavior a Pattern can
// capture.
type PatternType string

const (
	PatternProblemSolution PatternType = "ProblemSolution"
	PatternWorkflow        PatternType = "Workflow"
	PatternBestPractice    PatternType = "BestPractice"
	PatternCommonError     PatternType = "CommonError"
	PatternSkill           PatternType = "Skill"
)

func (t PatternType) Valid() bool {
	switch t {
	case PatternProblemSolution, PatternWorkflow, PatternBestPractice, PatternCommonError, PatternSkill:
		return true
	default:
		return false
	}
}

// Pattern is a recurring, reusable behavior distilled from repeated
// observations across sessions.
type Pattern struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	Type        PatternType `json:"pattern_type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Problem     string      `json:"problem,omitempty"`
	Solution    string      `json:"solution,omitempty"`
	Trigger     string      `json:"trigger,omitempty"`
	Context     string      `json:"context,omitempty"`
	Examples    []string    `json:"examples,omitempty"`

	SuccessCount int64   `json:"success_count"`
	FailureCount int64   `json:"failure_count"`
	AvgOutcome   float64 `json:"avg_outcome"`
	Confidence   float64 `json:"confidence"`
	IsPublic     bool    `json:"is_public"`

	Tags StringSet `json:"tags"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`
}

// NewPattern constructs a Pattern with zeroed counters and version 1.
func NewPattern(tenantID, userID string, ptype PatternType, name string) (*Pattern, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id must not be empty")
	}
	if name == "" {
		return nil, apperr.Validation("pattern name must not be empty")
	}
	if !ptype.Valid() {
		return nil, apperr.Validation("invalid pattern type %q", ptype)
	}
	now := time.Now().UTC()
	return &Pattern{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Type:      ptype,
		Name:      name,
		Confidence: 0.5,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
		Version:   1,
	}, nil
}

// RecordOutcome folds one more observation into the pattern's running
// success/failure counts and recomputes avg_outcome and confidence.
// outcome is in [0,1]: 1 is a clean success, 0 a clean failure.
func (p *Pattern) RecordOutcome(outcome float64) {
	outcome = clampUnit(outcome)
	if outcome >= 0.5 {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	total := p.SuccessCount + p.FailureCount
	p.AvgOutcome = (p.AvgOutcome*float64(total-1) + outcome) / float64(total)
	// Confidence grows with sample size and tracks the observed average,
	// capped at 1 and floored at 0 by clampUnit.
	sampleWeight := float64(total) / (float64(total) + 5)
	p.Confidence = clampUnit(p.AvgOutcome * sampleWeight)
	p.touch()
}

// SetDescription replaces the description, bumping version on change.
func (p *Pattern) SetDescription(description string) {
	if p.Description == description {
		return
	}
	p.Description = description
	p.touch()
}

// SetPublic toggles is_public, bumping version on change.
func (p *Pattern) SetPublic(public bool) {
	if p.IsPublic == public {
		return
	}
	p.IsPublic = public
	p.touch()
}

// AddTag adds a tag if not already present.
func (p *Pattern) AddTag(tag string) {
	if tag == "" {
		return
	}
	if p.Tags.Add(tag) {
		p.touch()
	}
}

// Archive transitions Active -> Archived; idempotent calls report an error.
func (p *Pattern) Archive() error {
	if p.Status == StatusArchived {
		return apperr.Validation("already archived")
	}
	if p.Status == StatusDeleted {
		return apperr.Validation("cannot archive a deleted pattern")
	}
	p.Status = StatusArchived
	p.touch()
	return nil
}

// Restore transitions Archived -> Active.
func (p *Pattern) Restore() error {
	if p.Status != StatusArchived {
		return apperr.Validation("only archived patterns can be restored")
	}
	p.Status = StatusActive
	p.touch()
	return nil
}

// SoftDelete transitions to Deleted.
func (p *Pattern) SoftDelete() error {
	if p.Status == StatusDeleted {
		return apperr.Validation("already deleted")
	}
	p.Status = StatusDeleted
	p.touch()
	return nil
}

func (p *Pattern) touch() {
	p.UpdatedAt = time.Now().UTC()
	p.Version++
}
