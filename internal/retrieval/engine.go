package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
)

// recencyHalfLife is the recency-boost time constant: one week. The boost
// is exp(-age/168h), so it falls to 1/e (not 1/2) after one week; the actual
// half-life is about 4.9 days.
const recencyHalfLife = 168 * time.Hour

// Embedder turns free text into the dense vector the dense-vector candidate
// pass searches against, an external collaborator named only by this
// function signature.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Candidate is one memory surfaced by either candidate-generation pass, with
// whichever of s_vec/s_lex that pass computed. A memory found by both passes
// has both fields set.
type Candidate struct {
	Memory *domain.Memory
	SVec   *float64
	SLex   *float64
}

// CandidateSource performs the two independent top-K candidate fetches —
// dense-vector and lexical — applying structural filters (kind, status,
// user, date) at candidate time so the engine never rescans the whole table.
type CandidateSource interface {
	VectorCandidates(ctx context.Context, tenantID string, embedding []float32, k int, filters Filters) ([]Candidate, error)
	LexicalCandidates(ctx context.Context, tenantID string, keyword string, k int, filters Filters) ([]Candidate, error)
}

// Filters carries the structural constraints a CandidateSource pushes down
// to its underlying query.
type Filters struct {
	UserID        string
	Kinds         []domain.Kind
	Statuses      []domain.Status
	MinImportance *float64
	DateRange     *DateRange
}

// Engine runs the hybrid dense+lexical retrieval algorithm: candidate
// generation, fusion scoring, and importance/recency/access re-ranking.
type Engine struct {
	Source   CandidateSource
	Embedder Embedder
	Now      func() time.Time
}

// NewEngine builds an Engine; Now defaults to time.Now for production use and
// is overridable in tests for deterministic recency scoring.
func NewEngine(source CandidateSource, embedder Embedder) *Engine {
	return &Engine{Source: source, Embedder: embedder, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Search executes the full candidate-generation -> fusion -> re-ranking ->
// selection pipeline.
func (e *Engine) Search(ctx context.Context, tenantID string, q Query) (Response, error) {
	if tenantID == "" {
		return Response{}, apperr.Validation("tenant_id must not be empty")
	}
	if err := q.Normalize(); err != nil {
		return Response{}, err
	}

	filters := Filters{
		UserID:        q.UserID,
		Kinds:         q.Kinds,
		Statuses:      q.Statuses,
		MinImportance: q.MinImportance,
		DateRange:     q.DateRange,
	}
	k := candidateK(q.Limit)

	byID := make(map[string]*scored)

	if q.SemanticQuery != "" && e.Embedder != nil {
		vec, err := e.Embedder.Embed(ctx, q.SemanticQuery)
		if err != nil {
			return Response{}, apperr.ExternalService("failed to embed semantic query", err)
		}
		vecCandidates, err := e.Source.VectorCandidates(ctx, tenantID, vec, k, filters)
		if err != nil {
			return Response{}, apperr.Database("vector candidate search failed", err)
		}
		for _, c := range vecCandidates {
			mergeCandidate(byID, c)
		}
	}

	lexCandidates, err := e.Source.LexicalCandidates(ctx, tenantID, lexicalTerms(q), k, filters)
	if err != nil {
		return Response{}, apperr.Database("lexical candidate search failed", err)
	}
	for _, c := range lexCandidates {
		mergeCandidate(byID, c)
	}

	filtered := make([]*scored, 0, len(byID))
	for _, s := range byID {
		if matchesQuery(s.memory, q) {
			filtered = append(filtered, s)
		}
	}

	if len(filtered) == 0 {
		return Response{Items: nil, Total: 0}, nil
	}

	now := e.now()
	for _, s := range filtered {
		s.score = fuse(s.sVec, s.sLex) * importanceBoost(s.memory.Importance) *
			recencyBoost(s.memory.CreatedAt, now) * accessBoost(s.memory, now)
	}

	sort.Slice(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.memory.UpdatedAt.Equal(b.memory.UpdatedAt) {
			return a.memory.UpdatedAt.After(b.memory.UpdatedAt)
		}
		return a.memory.ID < b.memory.ID
	})

	total := len(filtered)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	items := make([]Result, 0, end-start)
	for _, s := range filtered[start:end] {
		items = append(items, Result{Memory: s.memory, Score: s.score})
	}
	return Response{Items: items, Total: total}, nil
}

// RecentTurns serves the no-text "recent context" shortcut, skipping
// fusion/re-ranking entirely and returning the most recent turns for a
// session.
func (e *Engine) RecentTurns(ctx context.Context, turns store.TurnRepository, tenantID, sessionID string, limit int) ([]*domain.Turn, error) {
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	return turns.ListBySession(ctx, tenantID, sessionID, limit)
}

type scored struct {
	memory *domain.Memory
	sVec   *float64
	sLex   *float64
	score  float64
}

func mergeCandidate(byID map[string]*scored, c Candidate) {
	s, ok := byID[c.Memory.ID]
	if !ok {
		s = &scored{memory: c.Memory}
		byID[c.Memory.ID] = s
	}
	if c.SVec != nil {
		s.sVec = c.SVec
	}
	if c.SLex != nil {
		s.sLex = c.SLex
	}
}

// fuse combines s_vec and s_lex with a 0.65/0.35 weighting when both are
// defined, the defined one alone otherwise, plus a +0.05 bonus for appearing
// in both candidate lists.
func fuse(sVec, sLex *float64) float64 {
	switch {
	case sVec != nil && sLex != nil:
		combined := 0.65*(*sVec) + 0.35*(*sLex) + 0.05
		if combined > 1 {
			combined = 1
		}
		return combined
	case sVec != nil:
		return *sVec
	case sLex != nil:
		return *sLex
	default:
		return 0
	}
}

func importanceBoost(importance float64) float64 {
	return 0.5 + 0.5*importance
}

func recencyBoost(createdAt, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Exp(-ageHours / recencyHalfLife.Hours())
}

func accessBoost(m *domain.Memory, now time.Time) float64 {
	if m.AccessedWithin(24*time.Hour, now) {
		return 1.1
	}
	return 1.0
}

func lexicalTerms(q Query) string {
	terms := []string{q.Keyword}
	terms = append(terms, q.Tags...)
	terms = append(terms, q.Topics...)
	return strings.TrimSpace(strings.Join(terms, " "))
}

func matchesQuery(m *domain.Memory, q Query) bool {
	if len(q.Kinds) > 0 && !containsKind(q.Kinds, m.Kind) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, m.Status) {
		return false
	}
	if q.MinImportance != nil && m.Importance < *q.MinImportance {
		return false
	}
	for _, tag := range q.Tags {
		if !m.Tags.Has(tag) {
			return false
		}
	}
	for _, topic := range q.Topics {
		if !m.Topics.Has(topic) {
			return false
		}
	}
	if q.DateRange != nil {
		if !q.DateRange.From.IsZero() && m.CreatedAt.Before(q.DateRange.From) {
			return false
		}
		if !q.DateRange.To.IsZero() && m.CreatedAt.After(q.DateRange.To) {
			return false
		}
	}
	return true
}

func containsKind(kinds []domain.Kind, k domain.Kind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func containsStatus(statuses []domain.Status, s domain.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
