package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
)

// PatternRepository implements store.PatternRepository on top of GORM, since
// pattern reads are infrequent compared to memory retrieval.
type PatternRepository struct {
	db *DB
}

func NewPatternRepository(db *DB) *PatternRepository {
	return &PatternRepository{db: db}
}

func (r *PatternRepository) Create(ctx context.Context, p *domain.Pattern) error {
	row := patternToRow(p)
	if err := r.db.gorm.WithContext(ctx).Create(row).Error; err != nil {
		return apperr.Database("failed to insert pattern", err)
	}
	return nil
}

func (r *PatternRepository) Get(ctx context.Context, tenantID, id string) (*domain.Pattern, error) {
	var row patternRow
	err := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("pattern %s not found", id)
	}
	if err != nil {
		return nil, apperr.Database("failed to query pattern", err)
	}
	return rowToPattern(&row), nil
}

func (r *PatternRepository) Update(ctx context.Context, p *domain.Pattern, expectedVersion int64) error {
	row := patternToRow(p)
	result := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND version = ?", p.TenantID, p.ID, expectedVersion).
		Updates(row)
	if result.Error != nil {
		return apperr.Database("failed to update pattern", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.VersionConflict("pattern %s was modified concurrently", p.ID)
	}
	return nil
}

func (r *PatternRepository) Delete(ctx context.Context, tenantID, id string) error {
	result := r.db.gorm.WithContext(ctx).Model(&patternRow{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("status", string(domain.StatusDeleted))
	if result.Error != nil {
		return apperr.Database("failed to delete pattern", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("pattern %s not found", id)
	}
	return nil
}

func (r *PatternRepository) List(ctx context.Context, filter store.ListFilter) (store.Page[*domain.Pattern], error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	q := r.db.gorm.WithContext(ctx).Model(&patternRow{}).Where("tenant_id = ?", filter.TenantID)
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return store.Page[*domain.Pattern]{}, apperr.Database("failed to count patterns", err)
	}

	var rows []patternRow
	if err := q.Order("updated_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return store.Page[*domain.Pattern]{}, apperr.Database("failed to list patterns", err)
	}

	items := make([]*domain.Pattern, len(rows))
	for i := range rows {
		items[i] = rowToPattern(&rows[i])
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return store.Page[*domain.Pattern]{Items: items, Total: total, PageNum: page, PageSize: pageSize, TotalPages: totalPages}, nil
}

func patternToRow(p *domain.Pattern) *patternRow {
	tags, _ := json.Marshal(p.Tags.Values())
	examples, _ := json.Marshal(p.Examples)
	return &patternRow{
		ID: p.ID, TenantID: p.TenantID, UserID: p.UserID,
		PatternType: string(p.Type), Name: p.Name, Description: p.Description,
		Problem: p.Problem, Solution: p.Solution, Trigger: p.Trigger,
		PatternCtx: p.Context, Examples: examples,
		SuccessCount: p.SuccessCount, FailureCount: p.FailureCount,
		AvgOutcome: p.AvgOutcome, Confidence: p.Confidence, IsPublic: p.IsPublic,
		Tags: tags, Status: string(p.Status), Version: p.Version,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func rowToPattern(row *patternRow) *domain.Pattern {
	var tags, examples []string
	_ = json.Unmarshal(row.Tags, &tags)
	_ = json.Unmarshal(row.Examples, &examples)
	return &domain.Pattern{
		ID: row.ID, TenantID: row.TenantID, UserID: row.UserID,
		Type: domain.PatternType(row.PatternType), Name: row.Name, Description: row.Description,
		Problem: row.Problem, Solution: row.Solution, Trigger: row.Trigger,
		Context: row.PatternCtx, Examples: examples,
		SuccessCount: row.SuccessCount, FailureCount: row.FailureCount,
		AvgOutcome: row.AvgOutcome, Confidence: row.Confidence, IsPublic: row.IsPublic,
		Tags: *domain.NewStringSet(tags...), Status: domain.Status(row.Status), Version: row.Version,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}
