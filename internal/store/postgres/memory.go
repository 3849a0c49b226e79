package postgres

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
)

// MemoryRepository implements store.MemoryRepository directly on pgx, since
// memory reads and writes sit on the request hot path.
type MemoryRepository struct {
	db *DB
}

func NewMemoryRepository(db *DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func (r *MemoryRepository) Create(ctx context.Context, m *domain.Memory) error {
	tags, _ := json.Marshal(m.Tags.Values())
	topics, _ := json.Marshal(m.Topics.Values())
	keywords, _ := json.Marshal(m.Keywords.Values())
	related, _ := json.Marshal(m.RelatedIDs.Values())

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO memories (
			id, tenant_id, user_id, kind, content, gist, full_summary,
			importance, confidence, tags, topics, keywords,
			source, source_id, parent_id, related_ids,
			status, version, accessed_at, created_at, updated_at, expires_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
		)`,
		m.ID, m.TenantID, m.UserID, string(m.Kind), m.Content, m.Gist, m.FullSummary,
		m.Importance, m.Confidence, tags, topics, keywords,
		m.Source, m.SourceID, m.ParentID, related,
		string(m.Status), m.Version, m.AccessedAt, m.CreatedAt, m.UpdatedAt, m.ExpiresAt,
	)
	if err != nil {
		return apperr.Database("failed to insert memory", err)
	}
	return nil
}

// Get fetches by id and enforces tenant equality at the repository
// boundary: a row owned by another tenant is an authorization failure, not
// a silent not-found, so the caller's tenant check can never be skipped.
func (r *MemoryRepository) Get(ctx context.Context, tenantID, id string) (*domain.Memory, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, kind, content, gist, full_summary,
		       importance, confidence, tags, topics, keywords,
		       source, source_id, parent_id, related_ids,
		       status, version, accessed_at, created_at, updated_at, expires_at
		FROM memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("memory %s not found", id)
		}
		return nil, apperr.Database("failed to query memory", err)
	}
	if m.TenantID != tenantID {
		return nil, apperr.Authorization("memory %s belongs to another tenant", id)
	}
	return m, nil
}

func (r *MemoryRepository) Update(ctx context.Context, m *domain.Memory, expectedVersion int64) error {
	tags, _ := json.Marshal(m.Tags.Values())
	topics, _ := json.Marshal(m.Topics.Values())
	keywords, _ := json.Marshal(m.Keywords.Values())
	related, _ := json.Marshal(m.RelatedIDs.Values())

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE memories SET
			content=$1, gist=$2, full_summary=$3, importance=$4, confidence=$5,
			tags=$6, topics=$7, keywords=$8, related_ids=$9,
			status=$10, version=$11, accessed_at=$12, updated_at=$13, expires_at=$14
		WHERE tenant_id=$15 AND id=$16 AND version=$17`,
		m.Content, m.Gist, m.FullSummary, m.Importance, m.Confidence,
		tags, topics, keywords, related,
		string(m.Status), m.Version, m.AccessedAt, m.UpdatedAt, m.ExpiresAt,
		m.TenantID, m.ID, expectedVersion,
	)
	if err != nil {
		return apperr.Database("failed to update memory", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.VersionConflict("memory %s was modified concurrently", m.ID)
	}
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE memories SET status='Deleted', updated_at=now() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id)
	if err != nil {
		return apperr.Database("failed to delete memory", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("memory %s not found", id)
	}
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, filter store.ListFilter, kind domain.Kind) (store.Page[*domain.Memory], error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	where := `tenant_id = $1`
	args := []interface{}{filter.TenantID}
	argN := 2
	if filter.UserID != "" {
		where += fmtArg(" AND user_id = ", &argN)
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where += fmtArg(" AND status = ", &argN)
		args = append(args, string(filter.Status))
	}
	if kind != "" {
		where += fmtArg(" AND kind = ", &argN)
		args = append(args, string(kind))
	}

	var total int64
	if err := r.db.pool.QueryRow(ctx, "SELECT count(*) FROM memories WHERE "+where, args...).Scan(&total); err != nil {
		return store.Page[*domain.Memory]{}, apperr.Database("failed to count memories", err)
	}

	args = append(args, pageSize, offset)
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, kind, content, gist, full_summary,
		       importance, confidence, tags, topics, keywords,
		       source, source_id, parent_id, related_ids,
		       status, version, accessed_at, created_at, updated_at, expires_at
		FROM memories WHERE `+where+`
		ORDER BY updated_at DESC, id ASC
		LIMIT $`+strconv.Itoa(argN)+` OFFSET $`+strconv.Itoa(argN+1), args...)
	if err != nil {
		return store.Page[*domain.Memory]{}, apperr.Database("failed to list memories", err)
	}
	defer rows.Close()

	var items []*domain.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return store.Page[*domain.Memory]{}, apperr.Database("failed to scan memory row", err)
		}
		items = append(items, m)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return store.Page[*domain.Memory]{
		Items: items, Total: total, PageNum: page, PageSize: pageSize, TotalPages: totalPages,
	}, nil
}

func (r *MemoryRepository) ListCandidates(ctx context.Context, tenantID string, limit int) ([]*domain.Memory, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, kind, content, gist, full_summary,
		       importance, confidence, tags, topics, keywords,
		       source, source_id, parent_id, related_ids,
		       status, version, accessed_at, created_at, updated_at, expires_at
		FROM memories WHERE tenant_id=$1 AND status='Active'
		ORDER BY accessed_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, apperr.Database("failed to list memory candidates", err)
	}
	defer rows.Close()

	var items []*domain.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, apperr.Database("failed to scan memory row", err)
		}
		items = append(items, m)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row pgx.Row) (*domain.Memory, error) {
	return scanMemoryRows(row)
}

func scanMemoryRows(row rowScanner) (*domain.Memory, error) {
	return scanMemoryRowsWithExtra(row)
}

// scanMemoryRowsWithExtra scans the fixed 22 memory columns plus any extra
// trailing destinations a caller's SELECT appended (e.g. a computed
// similarity or rank column for retrieval candidates).
func scanMemoryRowsWithExtra(row rowScanner, extra ...interface{}) (*domain.Memory, error) {
	var m domain.Memory
	var kind, status string
	var tags, topics, keywords, related []byte

	dest := []interface{}{
		&m.ID, &m.TenantID, &m.UserID, &kind, &m.Content, &m.Gist, &m.FullSummary,
		&m.Importance, &m.Confidence, &tags, &topics, &keywords,
		&m.Source, &m.SourceID, &m.ParentID, &related,
		&status, &m.Version, &m.AccessedAt, &m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	m.Kind = domain.Kind(kind)
	m.Status = domain.Status(status)
	m.Tags = *unmarshalSet(tags)
	m.Topics = *unmarshalSet(topics)
	m.Keywords = *unmarshalSet(keywords)
	m.RelatedIDs = *unmarshalSet(related)
	return &m, nil
}

func unmarshalSet(data []byte) *domain.StringSet {
	var values []string
	_ = json.Unmarshal(data, &values)
	return domain.NewStringSet(values...)
}

func fmtArg(prefix string, argN *int) string {
	s := prefix + "$" + strconv.Itoa(*argN)
	*argN++
	return s
}

func (r *MemoryRepository) CountByUser(ctx context.Context, tenantID, userID string) (map[domain.Kind]int64, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT kind, count(*) FROM memories
		WHERE tenant_id=$1 AND user_id=$2 AND status != 'Deleted'
		GROUP BY kind`, tenantID, userID)
	if err != nil {
		return nil, apperr.Database("failed to count memories", err)
	}
	defer rows.Close()

	counts := make(map[domain.Kind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, apperr.Database("failed to scan count row", err)
		}
		counts[domain.Kind(kind)] = n
	}
	return counts, nil
}

// GetStats aggregates the tenant's counters in two grouped queries rather
// than one scan per dimension.
func (r *MemoryRepository) GetStats(ctx context.Context, tenantID string) (*store.MemoryStats, error) {
	stats := &store.MemoryStats{
		TotalByKind:   make(map[domain.Kind]int64),
		TotalByStatus: make(map[domain.Status]int64),
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT kind, status, count(*), coalesce(sum(length(content)), 0)
		FROM memories WHERE tenant_id=$1
		GROUP BY kind, status`, tenantID)
	if err != nil {
		return nil, apperr.Database("failed to aggregate memory stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, status string
		var n, bytes int64
		if err := rows.Scan(&kind, &status, &n, &bytes); err != nil {
			return nil, apperr.Database("failed to scan stats row", err)
		}
		stats.TotalByKind[domain.Kind(kind)] += n
		stats.TotalByStatus[domain.Status(status)] += n
		stats.StorageBytes += bytes
	}

	histRows, err := r.db.pool.Query(ctx, `
		SELECT least(floor(importance * 10), 9)::int AS bucket, count(*)
		FROM memories WHERE tenant_id=$1 AND status != 'Deleted'
		GROUP BY bucket`, tenantID)
	if err != nil {
		return nil, apperr.Database("failed to aggregate importance histogram", err)
	}
	defer histRows.Close()
	for histRows.Next() {
		var bucket int
		var n int64
		if err := histRows.Scan(&bucket, &n); err != nil {
			return nil, apperr.Database("failed to scan histogram row", err)
		}
		if bucket >= 0 && bucket < len(stats.ImportanceHistogram) {
			stats.ImportanceHistogram[bucket] = n
		}
	}
	return stats, nil
}
