// Package retrieval implements the hybrid dense-vector + lexical search
// engine over memories: candidate generation, fusion scoring, and
// importance/recency re-ranking. The engine itself is storage-agnostic;
// candidate generation is delegated to a CandidateSource so the scoring
// pipeline stays unit-testable without a database.
package retrieval

import (
	"time"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
)

// DateRange narrows candidates by creation time; a zero value on either end
// means unbounded on that side.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Query is a single search request against the memory store: structural
// filters combined with an optional free-text semantic query.
type Query struct {
	UserID          string
	Kinds           []domain.Kind
	Statuses        []domain.Status
	Tags            []string
	Topics          []string
	Keyword         string
	MinImportance   *float64
	DateRange       *DateRange
	SemanticQuery   string
	Limit           int
	Offset          int
}

const (
	minLimit     = 1
	maxLimit     = 100
	defaultLimit = 20
)

// Normalize clamps Limit to [1,100] (defaulting to 20 when unset) and Offset
// to >= 0, and rejects a query carrying no filters at all.
func (q *Query) Normalize() error {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit < minLimit {
		q.Limit = minLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.UserID == "" && len(q.Kinds) == 0 && len(q.Statuses) == 0 && len(q.Tags) == 0 &&
		len(q.Topics) == 0 && q.Keyword == "" && q.MinImportance == nil && q.DateRange == nil &&
		q.SemanticQuery == "" {
		return apperr.Validation("query must specify at least one filter")
	}
	return nil
}

// candidateK is the vector/lexical candidate pool size for a query asking
// for limit results: 4x the page, floored at 50.
func candidateK(limit int) int {
	k := limit * 4
	if k < 50 {
		k = 50
	}
	return k
}

// Result is one scored, ranked memory in a retrieval response.
type Result struct {
	Memory *domain.Memory
	Score  float64
}

// Response is the page of results a Search call returns.
type Response struct {
	Items []Result
	Total int
}
