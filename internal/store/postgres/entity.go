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

// EntityRepository implements store.EntityRepository on top of GORM; entity
// and relationship traffic is lower-volume than memory retrieval, same split
// PatternRepository and ProfileRepository draw.
type EntityRepository struct {
	db *DB
}

func NewEntityRepository(db *DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) CreateEntity(ctx context.Context, e *domain.Entity) error {
	if err := r.db.gorm.WithContext(ctx).Create(entityToRow(e)).Error; err != nil {
		return apperr.Database("failed to insert entity", err)
	}
	return nil
}

func (r *EntityRepository) GetEntity(ctx context.Context, tenantID, id string) (*domain.Entity, error) {
	var row entityRow
	err := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("entity %s not found", id)
	}
	if err != nil {
		return nil, apperr.Database("failed to query entity", err)
	}
	return rowToEntity(&row), nil
}

func (r *EntityRepository) FindEntityByName(ctx context.Context, tenantID, name string) (*domain.Entity, error) {
	var row entityRow
	err := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("entity %q not found", name)
	}
	if err != nil {
		return nil, apperr.Database("failed to query entity by name", err)
	}
	return rowToEntity(&row), nil
}

func (r *EntityRepository) UpdateEntity(ctx context.Context, e *domain.Entity, expectedVersion int64) error {
	result := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND version = ?", e.TenantID, e.ID, expectedVersion).
		Updates(entityToRow(e))
	if result.Error != nil {
		return apperr.Database("failed to update entity", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.VersionConflict("entity %s was modified concurrently", e.ID)
	}
	return nil
}

func (r *EntityRepository) ListEntities(ctx context.Context, filter store.ListFilter) (store.Page[*domain.Entity], error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	q := r.db.gorm.WithContext(ctx).Model(&entityRow{}).Where("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return store.Page[*domain.Entity]{}, apperr.Database("failed to count entities", err)
	}

	var rows []entityRow
	if err := q.Order("updated_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return store.Page[*domain.Entity]{}, apperr.Database("failed to list entities", err)
	}

	items := make([]*domain.Entity, len(rows))
	for i := range rows {
		items[i] = rowToEntity(&rows[i])
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return store.Page[*domain.Entity]{Items: items, Total: total, PageNum: page, PageSize: pageSize, TotalPages: totalPages}, nil
}

func (r *EntityRepository) CreateRelationship(ctx context.Context, rel *domain.Relationship) error {
	if err := r.db.gorm.WithContext(ctx).Create(relationshipToRow(rel)).Error; err != nil {
		return apperr.Database("failed to insert relationship", err)
	}
	return nil
}

func (r *EntityRepository) UpdateRelationship(ctx context.Context, rel *domain.Relationship, expectedVersion int64) error {
	result := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND version = ?", rel.TenantID, rel.ID, expectedVersion).
		Updates(relationshipToRow(rel))
	if result.Error != nil {
		return apperr.Database("failed to update relationship", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.VersionConflict("relationship %s was modified concurrently", rel.ID)
	}
	return nil
}

// AdjacentTo returns the single-step relationships touching entityID, in
// either direction. There is no general graph traversal.
func (r *EntityRepository) AdjacentTo(ctx context.Context, tenantID, entityID string) ([]*domain.Relationship, error) {
	var rows []relationshipRow
	err := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND (from_entity_id = ? OR to_entity_id = ?)",
			tenantID, string(domain.StatusActive), entityID, entityID).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Database("failed to query adjacent relationships", err)
	}
	items := make([]*domain.Relationship, len(rows))
	for i := range rows {
		items[i] = rowToRelationship(&rows[i])
	}
	return items, nil
}

func entityToRow(e *domain.Entity) *entityRow {
	aliases, _ := json.Marshal(e.Alias.Values())
	attrs, _ := json.Marshal(e.Attributes)
	return &entityRow{
		ID: e.ID, TenantID: e.TenantID, EntityType: string(e.Type), Name: e.Name,
		Aliases: aliases, Attributes: attrs, MentionCount: e.MentionCount,
		Status: string(e.Status), Version: e.Version,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

func rowToEntity(row *entityRow) *domain.Entity {
	var aliases []string
	var attrs map[string]string
	_ = json.Unmarshal(row.Aliases, &aliases)
	_ = json.Unmarshal(row.Attributes, &attrs)
	return &domain.Entity{
		ID: row.ID, TenantID: row.TenantID, Type: domain.EntityType(row.EntityType), Name: row.Name,
		Alias: *domain.NewStringSet(aliases...), Attributes: attrs, MentionCount: row.MentionCount,
		Status: domain.Status(row.Status), Version: row.Version,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}

func relationshipToRow(rel *domain.Relationship) *relationshipRow {
	return &relationshipRow{
		ID: rel.ID, TenantID: rel.TenantID, FromEntityID: rel.FromEntityID, ToEntityID: rel.ToEntityID,
		RelationType: string(rel.Type), Strength: rel.Strength,
		Status: string(rel.Status), Version: rel.Version,
		CreatedAt: rel.CreatedAt, UpdatedAt: rel.UpdatedAt,
	}
}

func rowToRelationship(row *relationshipRow) *domain.Relationship {
	return &domain.Relationship{
		ID: row.ID, TenantID: row.TenantID, FromEntityID: row.FromEntityID, ToEntityID: row.ToEntityID,
		Type: domain.RelationType(row.RelationType), Strength: row.Strength,
		Status: domain.Status(row.Status), Version: row.Version,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}
