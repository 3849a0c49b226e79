package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
)

// IndexRecordRepository implements store.IndexRecordRepository directly on
// pgx: it keeps the pgvector embedding column and the generated tsvector
// column the retrieval engine scans in sync on every Upsert.
type IndexRecordRepository struct {
	db *DB
}

func NewIndexRecordRepository(db *DB) *IndexRecordRepository {
	return &IndexRecordRepository{db: db}
}

func (r *IndexRecordRepository) Upsert(ctx context.Context, rec *domain.IndexRecord, embedding []float32, searchText string) error {
	tags, _ := json.Marshal(rec.Tags.Values())
	topics, _ := json.Marshal(rec.Topics.Values())

	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO memory_index (
			id, tenant_id, memory_id, kind, gist, tags, topics,
			importance, status, accessed_at, created_at, embedding, search_text
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tenant_id, memory_id) DO UPDATE SET
			kind = EXCLUDED.kind, gist = EXCLUDED.gist, tags = EXCLUDED.tags,
			topics = EXCLUDED.topics, importance = EXCLUDED.importance,
			status = EXCLUDED.status, accessed_at = EXCLUDED.accessed_at,
			embedding = EXCLUDED.embedding, search_text = EXCLUDED.search_text`,
		rec.ID, rec.TenantID, rec.MemoryID, string(rec.Kind), rec.Gist, tags, topics,
		rec.Importance, string(rec.Status), rec.AccessedAt, rec.CreatedAt, vec, searchText,
	)
	if err != nil {
		return apperr.Database("failed to upsert index record", err)
	}
	return nil
}

func (r *IndexRecordRepository) Delete(ctx context.Context, tenantID, memoryID string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM memory_index WHERE tenant_id = $1 AND memory_id = $2`, tenantID, memoryID)
	if err != nil {
		return apperr.Database("failed to delete index record", err)
	}
	return nil
}

func (r *IndexRecordRepository) Get(ctx context.Context, tenantID, memoryID string) (*domain.IndexRecord, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, memory_id, kind, gist, tags, topics, importance, status, accessed_at, created_at
		FROM memory_index WHERE tenant_id = $1 AND memory_id = $2`, tenantID, memoryID)

	var rec domain.IndexRecord
	var kind, status string
	var tags, topics []byte
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.MemoryID, &kind, &rec.Gist, &tags, &topics,
		&rec.Importance, &status, &rec.AccessedAt, &rec.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("index record for memory %s not found", memoryID)
		}
		return nil, apperr.Database("failed to query index record", err)
	}
	rec.Kind = domain.Kind(kind)
	rec.Status = domain.Status(status)
	rec.Tags = *unmarshalSet(tags)
	rec.Topics = *unmarshalSet(topics)
	return &rec, nil
}
