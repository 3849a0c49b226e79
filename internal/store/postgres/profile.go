package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
)

// ProfileRepository implements store.ProfileRepository. Facts and
// preferences live in their own tables, loaded and replaced wholesale on
// each write since a profile's fact list stays small.
type ProfileRepository struct {
	db *DB
}

func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	return r.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(profileToRow(p)).Error; err != nil {
			return apperr.Database("failed to insert profile", err)
		}
		return replaceFactsAndPrefs(tx, p)
	})
}

func (r *ProfileRepository) Get(ctx context.Context, tenantID, userID string) (*domain.Profile, error) {
	var row profileRow
	err := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("profile for user %s not found", userID)
	}
	if err != nil {
		return nil, apperr.Database("failed to query profile", err)
	}

	var facts []factRow
	if err := r.db.gorm.WithContext(ctx).Where("profile_id = ?", row.ID).Find(&facts).Error; err != nil {
		return nil, apperr.Database("failed to query profile facts", err)
	}
	var prefs []preferenceRow
	if err := r.db.gorm.WithContext(ctx).Where("profile_id = ?", row.ID).Find(&prefs).Error; err != nil {
		return nil, apperr.Database("failed to query profile preferences", err)
	}

	return rowToProfile(&row, facts, prefs), nil
}

func (r *ProfileRepository) Update(ctx context.Context, p *domain.Profile, expectedVersion int64) error {
	return r.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("tenant_id = ? AND user_id = ? AND version = ?", p.TenantID, p.UserID, expectedVersion).
			Updates(profileToRow(p))
		if result.Error != nil {
			return apperr.Database("failed to update profile", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.VersionConflict("profile for user %s was modified concurrently", p.UserID)
		}
		return replaceFactsAndPrefs(tx, p)
	})
}

func (r *ProfileRepository) Delete(ctx context.Context, tenantID, userID string) error {
	result := r.db.gorm.WithContext(ctx).Model(&profileRow{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Update("status", string(domain.StatusDeleted))
	if result.Error != nil {
		return apperr.Database("failed to delete profile", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("profile for user %s not found", userID)
	}
	return nil
}

func replaceFactsAndPrefs(tx *gorm.DB, p *domain.Profile) error {
	if err := tx.Where("profile_id = ?", p.ID).Delete(&factRow{}).Error; err != nil {
		return apperr.Database("failed to clear profile facts", err)
	}
	if err := tx.Where("profile_id = ?", p.ID).Delete(&preferenceRow{}).Error; err != nil {
		return apperr.Database("failed to clear profile preferences", err)
	}
	if len(p.Facts) > 0 {
		rows := make([]factRow, len(p.Facts))
		for i, f := range p.Facts {
			rows[i] = factRow{
				ID: f.ID, ProfileID: p.ID, Text: f.Text, Category: f.Category,
				Confidence: f.Confidence, Verified: f.Verified, RecordedAt: f.RecordedAt,
			}
			if f.Verified {
				t := f.VerifiedAt
				rows[i].VerifiedAt = &t
			}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return apperr.Database("failed to insert profile facts", err)
		}
	}
	if len(p.Preferences) > 0 {
		rows := make([]preferenceRow, len(p.Preferences))
		for i, pref := range p.Preferences {
			rows[i] = preferenceRow{ProfileID: p.ID, Key: pref.Key, Value: pref.Value, Reason: pref.Reason}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return apperr.Database("failed to insert profile preferences", err)
		}
	}
	return nil
}

func profileToRow(p *domain.Profile) *profileRow {
	interests, _ := json.Marshal(p.Interests.Values())
	tools, _ := json.Marshal(p.Tools.Values())
	hours, _ := json.Marshal(p.Hours)
	return &profileRow{
		ID: p.ID, TenantID: p.TenantID, UserID: p.UserID, Identity: p.Identity,
		Interests: interests, Tools: tools, WorkingHours: hours,
		Status: string(p.Status), Version: p.Version,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func rowToProfile(row *profileRow, facts []factRow, prefs []preferenceRow) *domain.Profile {
	var interests, tools []string
	var hours []domain.WorkingHours
	_ = json.Unmarshal(row.Interests, &interests)
	_ = json.Unmarshal(row.Tools, &tools)
	_ = json.Unmarshal(row.WorkingHours, &hours)

	domainFacts := make([]domain.Fact, len(facts))
	for i, f := range facts {
		domainFacts[i] = domain.Fact{
			ID: f.ID, Text: f.Text, Category: f.Category,
			Confidence: f.Confidence, Verified: f.Verified, RecordedAt: f.RecordedAt,
		}
		if f.VerifiedAt != nil {
			domainFacts[i].VerifiedAt = *f.VerifiedAt
		}
	}
	domainPrefs := make([]domain.Preference, len(prefs))
	for i, p := range prefs {
		domainPrefs[i] = domain.Preference{Key: p.Key, Value: p.Value, Reason: p.Reason}
	}

	return &domain.Profile{
		ID: row.ID, TenantID: row.TenantID, UserID: row.UserID, Identity: row.Identity,
		Preferences: domainPrefs, Facts: domainFacts,
		Interests: *domain.NewStringSet(interests...), Tools: *domain.NewStringSet(tools...),
		Hours:     hours,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
		Status: domain.Status(row.Status), Version: row.Version,
	}
}
