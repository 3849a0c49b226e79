// Package store abstracts persistence for the memory system across two
// specialized backends, composed as narrow, domain-specific repository
// interfaces rather than one fat DAO:
//
//   - Postgres: durable storage for every typed record (memories, patterns,
//     profiles, entities, relationships, sessions, turns, index records),
//     plus the retrieval-facing vector and lexical indexes.
//   - Redis: distributed locks for the integrator's per-tenant consolidation
//     passes, and a cache tier in front of hot reads.
//
// Applications compose these by tenant: every read/write is scoped to a
// tenant_id at the repository boundary, never left to callers to filter.
package store

import (
	"context"
	"time"

	"github.com/evalgo/memstore/internal/domain"
)

// Page is a single page of a listing, with enough metadata for a client to
// walk the full result set deterministically.
type Page[T any] struct {
	Items      []T
	Total      int64
	PageNum    int
	PageSize   int
	TotalPages int
}

// ListFilter narrows a listing to a tenant/user/status/kind combination with
// offset pagination. Zero filter values mean "no filter"; a Page or PageSize
// of zero or less is defaulted by the repositories to page 1 and a page size
// of 20.
type ListFilter struct {
	TenantID string
	UserID   string
	Status   domain.Status
	Page     int
	PageSize int
}

// MemoryStats aggregates a tenant's memory counters for the stats endpoint.
type MemoryStats struct {
	TotalByKind   map[domain.Kind]int64   `json:"total_by_kind"`
	TotalByStatus map[domain.Status]int64 `json:"total_by_status"`
	// ImportanceHistogram buckets importance into ten equal bins, [0,0.1)
	// through [0.9,1.0].
	ImportanceHistogram [10]int64 `json:"importance_histogram"`
	StorageBytes        int64     `json:"storage_bytes"`
}

// MemoryRepository persists Memory records.
type MemoryRepository interface {
	Create(ctx context.Context, m *domain.Memory) error
	Get(ctx context.Context, tenantID, id string) (*domain.Memory, error)
	Update(ctx context.Context, m *domain.Memory, expectedVersion int64) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, filter ListFilter, kind domain.Kind) (Page[*domain.Memory], error)
	// ListCandidates returns Active memories for a tenant eligible for a
	// retrieval or integrator pass, most-recently-accessed first.
	ListCandidates(ctx context.Context, tenantID string, limit int) ([]*domain.Memory, error)
	// CountByUser tallies the user's memories per kind, soft-deleted rows
	// excluded.
	CountByUser(ctx context.Context, tenantID, userID string) (map[domain.Kind]int64, error)
	// GetStats aggregates tenant-wide counters.
	GetStats(ctx context.Context, tenantID string) (*MemoryStats, error)
}

// PatternRepository persists Pattern records.
type PatternRepository interface {
	Create(ctx context.Context, p *domain.Pattern) error
	Get(ctx context.Context, tenantID, id string) (*domain.Pattern, error)
	Update(ctx context.Context, p *domain.Pattern, expectedVersion int64) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, filter ListFilter) (Page[*domain.Pattern], error)
}

// ProfileRepository persists Profile records, one per (tenant_id, user_id).
type ProfileRepository interface {
	Create(ctx context.Context, p *domain.Profile) error
	Get(ctx context.Context, tenantID, userID string) (*domain.Profile, error)
	Update(ctx context.Context, p *domain.Profile, expectedVersion int64) error
	Delete(ctx context.Context, tenantID, userID string) error
}

// EntityRepository persists Entity and Relationship records.
type EntityRepository interface {
	CreateEntity(ctx context.Context, e *domain.Entity) error
	GetEntity(ctx context.Context, tenantID, id string) (*domain.Entity, error)
	FindEntityByName(ctx context.Context, tenantID, name string) (*domain.Entity, error)
	UpdateEntity(ctx context.Context, e *domain.Entity, expectedVersion int64) error
	ListEntities(ctx context.Context, filter ListFilter) (Page[*domain.Entity], error)

	CreateRelationship(ctx context.Context, r *domain.Relationship) error
	UpdateRelationship(ctx context.Context, r *domain.Relationship, expectedVersion int64) error
	// AdjacentTo returns the single-step relationships touching entityID,
	// in either direction. No multi-hop traversal is offered.
	AdjacentTo(ctx context.Context, tenantID, entityID string) ([]*domain.Relationship, error)
}

// SessionRepository persists Session records.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, tenantID, id string) (*domain.Session, error)
	Update(ctx context.Context, s *domain.Session, expectedVersion int64) error
	List(ctx context.Context, filter ListFilter) (Page[*domain.Session], error)
	// DeleteCascade soft-deletes the session and every turn that belongs to
	// it and removes the index records of memories sourced from it, in one
	// transaction.
	DeleteCascade(ctx context.Context, tenantID, id string) error
}

// TurnRepository persists append-only Turn records.
type TurnRepository interface {
	Create(ctx context.Context, t *domain.Turn) error
	ListBySession(ctx context.Context, tenantID, sessionID string, limit int) ([]*domain.Turn, error)
	// ListUndehydrated returns turns not yet folded into a Memory, oldest
	// first, for the integrator's dehydration pass.
	ListUndehydrated(ctx context.Context, tenantID string, limit int) ([]*domain.Turn, error)
	MarkDehydrated(ctx context.Context, tenantID, turnID string) error
}

// IndexRecordRepository persists the retrieval-facing projection of Memory.
// Implementations are responsible for keeping the embedding and tsvector
// columns that back hybrid search in sync with each Upsert.
type IndexRecordRepository interface {
	Upsert(ctx context.Context, rec *domain.IndexRecord, embedding []float32, searchText string) error
	Delete(ctx context.Context, tenantID, memoryID string) error
	Get(ctx context.Context, tenantID, memoryID string) (*domain.IndexRecord, error)
}

// Lock is a distributed mutex scoped to a single key, held until Release or
// until its TTL expires, whichever comes first.
type Lock interface {
	Release(ctx context.Context) error
}

// LockRepository provides the per-tenant mutual exclusion the integrator
// uses to guarantee at most one consolidation pass runs concurrently.
type LockRepository interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}

// CacheRepository is a narrow read-through cache in front of Postgres reads.
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}
