package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/evalgo/memstore/internal/apperr"
)

// Preference is a single key/value preference with the reason it was set.
type Preference struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// Fact is a piece of knowledge about the user, with a verification state
// distinct from the fact's own confidence score.
type Fact struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Category     string    `json:"category,omitempty"`
	Confidence   float64   `json:"confidence"`
	Verified     bool      `json:"verified"`
	VerifiedAt   time.Time `json:"verified_at,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// WorkingHours is a simple day-of-week -> [start,end) window in "HH:MM" form.
type WorkingHours struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Profile accumulates durable, slowly-changing knowledge about a single user
// within a tenant: one profile per (tenant_id, user_id).
type Profile struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	Identity string `json:"identity,omitempty"`

	Preferences []Preference   `json:"preferences"`
	Facts       []Fact         `json:"facts"`
	Interests   StringSet      `json:"interests"`
	Tools       StringSet      `json:"tools"`
	Hours       []WorkingHours `json:"working_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`
}

// NewProfile constructs an empty Active Profile at version 1.
func NewProfile(tenantID, userID string) (*Profile, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant_id must not be empty")
	}
	if userID == "" {
		return nil, apperr.Validation("user_id must not be empty")
	}
	now := time.Now().UTC()
	return &Profile{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
		Version:   1,
	}, nil
}

// SetPreference upserts a preference by key, bumping version only if the
// value or reason actually changed.
func (p *Profile) SetPreference(key, value, reason string) error {
	if key == "" {
		return apperr.Validation("preference key must not be empty")
	}
	for i := range p.Preferences {
		if p.Preferences[i].Key == key {
			if p.Preferences[i].Value == value && p.Preferences[i].Reason == reason {
				return nil
			}
			p.Preferences[i].Value = value
			p.Preferences[i].Reason = reason
			p.touch()
			return nil
		}
	}
	p.Preferences = append(p.Preferences, Preference{Key: key, Value: value, Reason: reason})
	p.touch()
	return nil
}

// AddFact appends a new fact in an unverified state.
func (p *Profile) AddFact(text, category string, confidence float64) (*Fact, error) {
	if text == "" {
		return nil, apperr.Validation("fact text must not be empty")
	}
	f := Fact{
		ID:         uuid.New().String(),
		Text:       text,
		Category:   category,
		Confidence: clampUnit(confidence),
		RecordedAt: time.Now().UTC(),
	}
	p.Facts = append(p.Facts, f)
	p.touch()
	return &p.Facts[len(p.Facts)-1], nil
}

// VerifyFact marks the fact with the given ID as verified, recording the
// verification timestamp. It is idempotent: re-verifying does not bump
// version.
func (p *Profile) VerifyFact(factID string) error {
	for i := range p.Facts {
		if p.Facts[i].ID == factID {
			if p.Facts[i].Verified {
				return nil
			}
			p.Facts[i].Verified = true
			p.Facts[i].VerifiedAt = time.Now().UTC()
			p.touch()
			return nil
		}
	}
	return apperr.NotFound("fact %s not found", factID)
}

// SetIdentity replaces the identity block, bumping version on change.
func (p *Profile) SetIdentity(identity string) {
	if p.Identity == identity {
		return
	}
	p.Identity = identity
	p.touch()
}

// AddInterest adds an interest if not already present.
func (p *Profile) AddInterest(interest string) {
	if interest == "" {
		return
	}
	if p.Interests.Add(interest) {
		p.touch()
	}
}

// AddTool adds a known tool if not already present.
func (p *Profile) AddTool(tool string) {
	if tool == "" {
		return
	}
	if p.Tools.Add(tool) {
		p.touch()
	}
}

// SetWorkingHours replaces the working-hours window for a given day.
func (p *Profile) SetWorkingHours(day, start, end string) error {
	if day == "" {
		return apperr.Validation("day must not be empty")
	}
	for i := range p.Hours {
		if p.Hours[i].Day == day {
			if p.Hours[i].Start == start && p.Hours[i].End == end {
				return nil
			}
			p.Hours[i].Start = start
			p.Hours[i].End = end
			p.touch()
			return nil
		}
	}
	p.Hours = append(p.Hours, WorkingHours{Day: day, Start: start, End: end})
	p.touch()
	return nil
}

func (p *Profile) touch() {
	p.UpdatedAt = time.Now().UTC()
	p.Version++
}
