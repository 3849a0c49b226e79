package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
)

// SessionRepository implements store.SessionRepository on top of GORM.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if err := r.db.gorm.WithContext(ctx).Create(sessionToRow(s)).Error; err != nil {
		return apperr.Database("failed to insert session", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, tenantID, id string) (*domain.Session, error) {
	var row sessionRow
	err := r.db.gorm.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("session %s not found", id)
	}
	if err != nil {
		return nil, apperr.Database("failed to query session", err)
	}
	return rowToSession(&row), nil
}

func (r *SessionRepository) Update(ctx context.Context, s *domain.Session, expectedVersion int64) error {
	result := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND version = ?", s.TenantID, s.ID, expectedVersion).
		Updates(sessionToRow(s))
	if result.Error != nil {
		return apperr.Database("failed to update session", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.VersionConflict("session %s was modified concurrently", s.ID)
	}
	return nil
}

func (r *SessionRepository) List(ctx context.Context, filter store.ListFilter) (store.Page[*domain.Session], error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	q := r.db.gorm.WithContext(ctx).Model(&sessionRow{}).Where("tenant_id = ?", filter.TenantID)
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return store.Page[*domain.Session]{}, apperr.Database("failed to count sessions", err)
	}

	var rows []sessionRow
	if err := q.Order("updated_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return store.Page[*domain.Session]{}, apperr.Database("failed to list sessions", err)
	}

	items := make([]*domain.Session, len(rows))
	for i := range rows {
		items[i] = rowToSession(&rows[i])
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return store.Page[*domain.Session]{Items: items, Total: total, PageNum: page, PageSize: pageSize, TotalPages: totalPages}, nil
}

// DeleteCascade soft-deletes the session and every turn belonging to it in
// one transaction, and drops their index records: deleting a turn deletes
// its index record too.
func (r *SessionRepository) DeleteCascade(ctx context.Context, tenantID, id string) error {
	return r.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&sessionRow{}).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			Update("status", string(domain.StatusDeleted))
		if result.Error != nil {
			return apperr.Database("failed to delete session", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.NotFound("session %s not found", id)
		}
		if err := tx.Model(&turnRow{}).
			Where("tenant_id = ? AND session_id = ?", tenantID, id).
			Update("status", string(domain.StatusDeleted)).Error; err != nil {
			return apperr.Database("failed to cascade-delete turns", err)
		}
		if err := tx.Exec(`DELETE FROM memory_index WHERE tenant_id = ? AND memory_id IN (
			SELECT id::text FROM memories WHERE tenant_id = ? AND source_id = ?)`,
			tenantID, tenantID, id).Error; err != nil {
			return apperr.Database("failed to cascade-delete index records", err)
		}
		return nil
	})
}

func sessionToRow(s *domain.Session) *sessionRow {
	return &sessionRow{
		ID: s.ID, TenantID: s.TenantID, UserID: s.UserID, Title: s.Title,
		TurnCount: s.TurnCount, Status: string(s.Status), Version: s.Version,
		StartedAt: s.StartedAt, EndedAt: s.EndedAt, UpdatedAt: s.UpdatedAt,
	}
}

func rowToSession(row *sessionRow) *domain.Session {
	return &domain.Session{
		ID: row.ID, TenantID: row.TenantID, UserID: row.UserID, Title: row.Title,
		TurnCount: row.TurnCount, Status: domain.Status(row.Status), Version: row.Version,
		StartedAt: row.StartedAt, EndedAt: row.EndedAt, UpdatedAt: row.UpdatedAt,
	}
}

// TurnRepository implements store.TurnRepository on top of GORM. Turns are
// append-only, matching domain.Turn's lack of content mutators.
type TurnRepository struct {
	db *DB
}

func NewTurnRepository(db *DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(ctx context.Context, t *domain.Turn) error {
	row := turnToRow(t)
	if err := r.db.gorm.WithContext(ctx).Create(row).Error; err != nil {
		return apperr.Database("failed to insert turn", err)
	}
	return nil
}

func (r *TurnRepository) ListBySession(ctx context.Context, tenantID, sessionID string, limit int) ([]*domain.Turn, error) {
	var rows []turnRow
	err := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ? AND status = ?", tenantID, sessionID, string(domain.StatusActive)).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, apperr.Database("failed to list turns", err)
	}
	items := make([]*domain.Turn, len(rows))
	for i := range rows {
		items[i] = rowToTurn(&rows[i])
	}
	return items, nil
}

func (r *TurnRepository) ListUndehydrated(ctx context.Context, tenantID string, limit int) ([]*domain.Turn, error) {
	var rows []turnRow
	err := r.db.gorm.WithContext(ctx).
		Where("tenant_id = ? AND status = ? AND dehydrated = ?", tenantID, string(domain.StatusActive), false).
		Order("created_at ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, apperr.Database("failed to list undehydrated turns", err)
	}
	items := make([]*domain.Turn, len(rows))
	for i := range rows {
		items[i] = rowToTurn(&rows[i])
	}
	return items, nil
}

func (r *TurnRepository) MarkDehydrated(ctx context.Context, tenantID, turnID string) error {
	result := r.db.gorm.WithContext(ctx).Model(&turnRow{}).
		Where("tenant_id = ? AND id = ?", tenantID, turnID).
		Update("dehydrated", true)
	if result.Error != nil {
		return apperr.Database("failed to mark turn dehydrated", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("turn %s not found", turnID)
	}
	return nil
}

func turnToRow(t *domain.Turn) *turnRow {
	return &turnRow{
		ID: t.ID, TenantID: t.TenantID, SessionID: t.SessionID,
		Role: string(t.Role), Content: t.Content, Dehydrated: t.Dehydrated,
		Status: string(t.Status), CreatedAt: t.CreatedAt,
	}
}

func rowToTurn(row *turnRow) *domain.Turn {
	return &domain.Turn{
		ID: row.ID, TenantID: row.TenantID, SessionID: row.SessionID,
		Role: domain.Role(row.Role), Content: row.Content, Dehydrated: row.Dehydrated,
		Status: domain.Status(row.Status), CreatedAt: row.CreatedAt,
	}
}
