package postgres

import (
	"context"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/retrieval"
)

// CandidateSource implements retrieval.CandidateSource against memory_index:
// vector candidates rank by pgvector's `<=>` cosine-distance operator,
// lexical candidates by Postgres' built-in plainto_tsquery/ts_rank over the
// generated search_vector column. Both join back to memories for the full
// domain record the retrieval engine scores and returns.
type CandidateSource struct {
	db *DB
}

func NewCandidateSource(db *DB) *CandidateSource {
	return &CandidateSource{db: db}
}

func (c *CandidateSource) VectorCandidates(ctx context.Context, tenantID string, embedding []float32, k int, filters retrieval.Filters) ([]retrieval.Candidate, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	where, args, argN := filterClause(tenantID, filters)
	vec := pgvector.NewVector(embedding)
	distCol := argN
	limitCol := argN + 1
	args = append(args, vec, k)

	rows, err := c.db.pool.Query(ctx, `
		SELECT m.id, m.tenant_id, m.user_id, m.kind, m.content, m.gist, m.full_summary,
		       m.importance, m.confidence, m.tags, m.topics, m.keywords,
		       m.source, m.source_id, m.parent_id, m.related_ids,
		       m.status, m.version, m.accessed_at, m.created_at, m.updated_at, m.expires_at,
		       1 - (i.embedding <=> $`+strconv.Itoa(distCol)+`) AS cosine_sim
		FROM memory_index i
		JOIN memories m ON m.tenant_id = i.tenant_id AND m.id::text = i.memory_id::text
		WHERE `+where+` AND i.embedding IS NOT NULL
		ORDER BY i.embedding <=> $`+strconv.Itoa(distCol)+`
		LIMIT $`+strconv.Itoa(limitCol), args...)
	if err != nil {
		return nil, apperr.Database("vector candidate query failed", err)
	}
	defer rows.Close()

	var out []retrieval.Candidate
	for rows.Next() {
		var sim float64
		m, err := scanMemoryRowsWithExtra(rows, &sim)
		if err != nil {
			return nil, apperr.Database("failed to scan vector candidate", err)
		}
		s := mapCosine(sim)
		out = append(out, retrieval.Candidate{Memory: m, SVec: &s})
	}
	return out, nil
}

func (c *CandidateSource) LexicalCandidates(ctx context.Context, tenantID string, keyword string, k int, filters retrieval.Filters) ([]retrieval.Candidate, error) {
	if keyword == "" {
		return nil, nil
	}
	where, args, argN := filterClause(tenantID, filters)
	queryCol := argN
	limitCol := argN + 1
	args = append(args, keyword, k)

	rows, err := c.db.pool.Query(ctx, `
		SELECT m.id, m.tenant_id, m.user_id, m.kind, m.content, m.gist, m.full_summary,
		       m.importance, m.confidence, m.tags, m.topics, m.keywords,
		       m.source, m.source_id, m.parent_id, m.related_ids,
		       m.status, m.version, m.accessed_at, m.created_at, m.updated_at, m.expires_at,
		       ts_rank(i.search_vector, plainto_tsquery('english', $`+strconv.Itoa(queryCol)+`)) AS rank
		FROM memory_index i
		JOIN memories m ON m.tenant_id = i.tenant_id AND m.id::text = i.memory_id::text
		WHERE `+where+` AND i.search_vector @@ plainto_tsquery('english', $`+strconv.Itoa(queryCol)+`)
		ORDER BY rank DESC
		LIMIT $`+strconv.Itoa(limitCol), args...)
	if err != nil {
		return nil, apperr.Database("lexical candidate query failed", err)
	}
	defer rows.Close()

	var out []retrieval.Candidate
	var ranks []float64
	maxRank := 0.0
	for rows.Next() {
		var rank float64
		m, err := scanMemoryRowsWithExtra(rows, &rank)
		if err != nil {
			return nil, apperr.Database("failed to scan lexical candidate", err)
		}
		if rank > maxRank {
			maxRank = rank
		}
		out = append(out, retrieval.Candidate{Memory: m})
		ranks = append(ranks, rank)
	}
	// Normalize ts_rank (an unbounded BM25-ish score) into [0,1] against the
	// page's own maximum.
	for i := range out {
		normalized := 0.0
		if maxRank > 0 {
			normalized = ranks[i] / maxRank
		}
		s := normalized
		out[i].SLex = &s
	}
	return out, nil
}

// mapCosine maps pgvector's cosine similarity (-1..1, since `<=>` returns
// distance = 1 - similarity) onto a [0,1] score.
func mapCosine(sim float64) float64 {
	s := (sim + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func filterClause(tenantID string, f retrieval.Filters) (string, []interface{}, int) {
	where := "m.tenant_id = $1 AND m.status != 'Deleted'"
	args := []interface{}{tenantID}
	argN := 2
	if f.UserID != "" {
		where += fmtArg(" AND m.user_id = ", &argN)
		args = append(args, f.UserID)
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		where += fmtArg(" AND m.kind = ANY(", &argN) + ")"
		args = append(args, kinds)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where += fmtArg(" AND m.status = ANY(", &argN) + ")"
		args = append(args, statuses)
	} else {
		where += " AND m.status = 'Active'"
	}
	if f.MinImportance != nil {
		where += fmtArg(" AND m.importance >= ", &argN)
		args = append(args, *f.MinImportance)
	}
	if f.DateRange != nil {
		if !f.DateRange.From.IsZero() {
			where += fmtArg(" AND m.created_at >= ", &argN)
			args = append(args, f.DateRange.From)
		}
		if !f.DateRange.To.IsZero() {
			where += fmtArg(" AND m.created_at <= ", &argN)
			args = append(args, f.DateRange.To)
		}
	}
	return where, args, argN
}
