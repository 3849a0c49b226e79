package httpapi

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/retrieval"
	"github.com/evalgo/memstore/internal/store"
)

// fakeMemoryRepo is an in-memory store.MemoryRepository mirroring the
// Postgres implementation's tenant and version semantics.
type fakeMemoryRepo struct {
	mu       sync.Mutex
	memories map[string]*domain.Memory
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{memories: make(map[string]*domain.Memory)}
}

func (r *fakeMemoryRepo) Create(_ context.Context, m *domain.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memories[m.ID]; ok {
		return apperr.Conflict("memory %s already exists", m.ID)
	}
	cp := *m
	r.memories[m.ID] = &cp
	return nil
}

func (r *fakeMemoryRepo) Get(_ context.Context, tenantID, id string) (*domain.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok {
		return nil, apperr.NotFound("memory %s not found", id)
	}
	if m.TenantID != tenantID {
		return nil, apperr.Authorization("memory %s belongs to another tenant", id)
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMemoryRepo) Update(_ context.Context, m *domain.Memory, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.memories[m.ID]
	if !ok || existing.TenantID != m.TenantID {
		return apperr.NotFound("memory %s not found", m.ID)
	}
	if existing.Version != expectedVersion {
		return apperr.VersionConflict("memory %s was modified concurrently", m.ID)
	}
	cp := *m
	r.memories[m.ID] = &cp
	return nil
}

func (r *fakeMemoryRepo) Delete(_ context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok || m.TenantID != tenantID {
		return apperr.NotFound("memory %s not found", id)
	}
	m.Status = domain.StatusDeleted
	return nil
}

func (r *fakeMemoryRepo) List(_ context.Context, filter store.ListFilter, kind domain.Kind) (store.Page[*domain.Memory], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.Memory
	for _, m := range r.memories {
		if m.TenantID != filter.TenantID {
			continue
		}
		if filter.UserID != "" && m.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if kind != "" && m.Kind != kind {
			continue
		}
		cp := *m
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	totalPages := int((total + int64(filter.PageSize) - 1) / int64(filter.PageSize))
	return store.Page[*domain.Memory]{
		Items: matched[start:end], Total: total,
		PageNum: filter.Page, PageSize: filter.PageSize, TotalPages: totalPages,
	}, nil
}

func (r *fakeMemoryRepo) ListCandidates(_ context.Context, tenantID string, limit int) ([]*domain.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Memory
	for _, m := range r.memories {
		if m.TenantID == tenantID && m.Status == domain.StatusActive && len(out) < limit {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeMemoryRepo) CountByUser(_ context.Context, tenantID, userID string) (map[domain.Kind]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.Kind]int64)
	for _, m := range r.memories {
		if m.TenantID == tenantID && m.UserID == userID && m.Status != domain.StatusDeleted {
			counts[m.Kind]++
		}
	}
	return counts, nil
}

func (r *fakeMemoryRepo) GetStats(_ context.Context, tenantID string) (*store.MemoryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &store.MemoryStats{
		TotalByKind:   make(map[domain.Kind]int64),
		TotalByStatus: make(map[domain.Status]int64),
	}
	for _, m := range r.memories {
		if m.TenantID != tenantID {
			continue
		}
		stats.TotalByKind[m.Kind]++
		stats.TotalByStatus[m.Status]++
		stats.StorageBytes += int64(len(m.Content))
	}
	return stats, nil
}

// fakeIndexRepo records upserts without indexing anything.
type fakeIndexRepo struct {
	mu      sync.Mutex
	upserts int
	deletes int
}

func (r *fakeIndexRepo) Upsert(context.Context, *domain.IndexRecord, []float32, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	return nil
}

func (r *fakeIndexRepo) Delete(context.Context, string, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	return nil
}

func (r *fakeIndexRepo) Get(context.Context, string, string) (*domain.IndexRecord, error) {
	return nil, apperr.NotFound("index record not found")
}

// fakeCandidateSource backs the retrieval engine with a substring scan over
// the fake memory repository.
type fakeCandidateSource struct {
	repo *fakeMemoryRepo
}

func (f *fakeCandidateSource) VectorCandidates(context.Context, string, []float32, int, retrieval.Filters) ([]retrieval.Candidate, error) {
	return nil, nil
}

func (f *fakeCandidateSource) LexicalCandidates(_ context.Context, tenantID string, keyword string, k int, filters retrieval.Filters) ([]retrieval.Candidate, error) {
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	needle := strings.ToLower(keyword)
	var out []retrieval.Candidate
	for _, m := range f.repo.memories {
		if m.TenantID != tenantID || m.Status != domain.StatusActive {
			continue
		}
		if filters.UserID != "" && m.UserID != filters.UserID {
			continue
		}
		haystack := strings.ToLower(m.Content + " " + m.Gist + " " + strings.Join(m.Keywords.Values(), " "))
		if needle != "" && !strings.Contains(haystack, needle) {
			continue
		}
		score := 0.5
		cp := *m
		out = append(out, retrieval.Candidate{Memory: &cp, SLex: &score})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}
