package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/retrieval"
	"github.com/evalgo/memstore/internal/store"
	"github.com/evalgo/memstore/internal/subscription"
)

type createMemoryRequest struct {
	Kind       string   `json:"kind"`
	Content    string   `json:"content"`
	Gist       string   `json:"gist"`
	Importance *float64 `json:"importance"`
	Confidence *float64 `json:"confidence"`
	Tags       []string `json:"tags"`
	Topics     []string `json:"topics"`
	Keywords   []string `json:"keywords"`
	Source     string   `json:"source"`
	SourceID   string   `json:"source_id"`
}

func (s *Server) createMemory(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req createMemoryRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	m, err := domain.NewMemory(claims.TenantID, claims.Subject, domain.Kind(req.Kind), req.Content)
	if err != nil {
		return err
	}
	if req.Gist != "" {
		m.SetGist(req.Gist)
	}
	if req.Importance != nil {
		m.SetImportance(*req.Importance)
	}
	if req.Confidence != nil {
		m.SetConfidence(*req.Confidence)
	}
	for _, t := range req.Tags {
		m.AddTag(t)
	}
	for _, t := range req.Topics {
		m.AddTopic(t)
	}
	for _, k := range req.Keywords {
		m.AddKeyword(k)
	}
	m.Source = req.Source
	m.SourceID = req.SourceID
	m.Version = 1

	ctx := c.Request().Context()
	if err := s.repos.Memories.Create(ctx, m); err != nil {
		return err
	}
	if err := s.indexMemory(c, m); err != nil {
		s.logger.WithError(err).WithField("memory", m.ID).Warn("failed to index memory")
	}

	s.registry.Publish(subscription.TopicMemoryCreated, eventPayload(m.TenantID, m.ID))
	return c.JSON(http.StatusCreated, m)
}

func (s *Server) getMemory(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	m, err := s.repos.Memories.Get(c.Request().Context(), claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	// Reads refresh recency without bumping version.
	m.Touch()
	return c.JSON(http.StatusOK, m)
}

type updateMemoryRequest struct {
	Gist       string   `json:"gist"`
	Importance *float64 `json:"importance"`
	Confidence *float64 `json:"confidence"`
	Tags       []string `json:"tags"`
	Topics     []string `json:"topics"`
	Keywords   []string `json:"keywords"`
	Version    int64    `json:"version"`
}

func (s *Server) updateMemory(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req updateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	ctx := c.Request().Context()
	m, err := s.repos.Memories.Get(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if req.Version != 0 && req.Version != m.Version {
		return apperr.VersionConflict("memory %s is at version %d, not %d", m.ID, m.Version, req.Version)
	}
	expected := m.Version

	if req.Gist != "" {
		m.SetGist(req.Gist)
	}
	if req.Importance != nil {
		m.SetImportance(*req.Importance)
	}
	if req.Confidence != nil {
		m.SetConfidence(*req.Confidence)
	}
	for _, t := range req.Tags {
		m.AddTag(t)
	}
	for _, t := range req.Topics {
		m.AddTopic(t)
	}
	for _, k := range req.Keywords {
		m.AddKeyword(k)
	}

	if m.Version == expected {
		// Nothing changed; no version bump, no write.
		return c.JSON(http.StatusOK, m)
	}
	if err := s.repos.Memories.Update(ctx, m, expected); err != nil {
		return err
	}
	if err := s.indexMemory(c, m); err != nil {
		s.logger.WithError(err).WithField("memory", m.ID).Warn("failed to reindex memory")
	}
	s.registry.Publish(subscription.TopicMemoryUpdated, eventPayload(m.TenantID, m.ID))
	return c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMemory(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	m, err := s.repos.Memories.Get(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if err := s.repos.Memories.Delete(ctx, claims.TenantID, m.ID); err != nil {
		return err
	}
	if err := s.repos.IndexRecords.Delete(ctx, claims.TenantID, m.ID); err != nil {
		s.logger.WithError(err).WithField("memory", m.ID).Warn("failed to drop index record")
	}
	s.registry.Publish(subscription.TopicMemoryDeleted, eventPayload(m.TenantID, m.ID))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listMemories(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	page, pageSize, err := paging(c)
	if err != nil {
		return err
	}

	filter := store.ListFilter{
		TenantID: claims.TenantID,
		UserID:   c.QueryParam("user_id"),
		Page:     page,
		PageSize: pageSize,
	}
	if filter.UserID == "" {
		filter.UserID = claims.Subject
	}
	if status := c.QueryParam("status"); status != "" {
		filter.Status = domain.Status(status)
	} else {
		filter.Status = domain.StatusActive
	}

	result, err := s.repos.Memories.List(c.Request().Context(), filter, domain.Kind(c.QueryParam("kind")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope(result))
}

type searchMemoriesRequest struct {
	UserID        string   `json:"user_id"`
	Kinds         []string `json:"kinds"`
	Statuses      []string `json:"statuses"`
	Tags          []string `json:"tags"`
	Topics        []string `json:"topics"`
	Keyword       string   `json:"keyword"`
	MinImportance *float64 `json:"min_importance"`
	DateFrom      string   `json:"date_from"`
	DateTo        string   `json:"date_to"`
	SemanticQuery string   `json:"semantic_query"`
	Limit         int      `json:"limit"`
	Offset        int      `json:"offset"`
}

func (s *Server) searchMemories(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req searchMemoriesRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	if req.Limit > 1000 {
		return apperr.Validation("limit must not exceed 1000")
	}

	q := retrieval.Query{
		UserID:        req.UserID,
		Tags:          req.Tags,
		Topics:        req.Topics,
		Keyword:       strings.TrimSpace(req.Keyword),
		MinImportance: req.MinImportance,
		SemanticQuery: strings.TrimSpace(req.SemanticQuery),
		Limit:         req.Limit,
		Offset:        req.Offset,
	}
	if q.UserID == "" {
		q.UserID = claims.Subject
	}
	for _, k := range req.Kinds {
		q.Kinds = append(q.Kinds, domain.Kind(k))
	}
	for _, st := range req.Statuses {
		q.Statuses = append(q.Statuses, domain.Status(st))
	}
	if req.DateFrom != "" || req.DateTo != "" {
		dr := &retrieval.DateRange{}
		if req.DateFrom != "" {
			if dr.From, err = time.Parse(time.RFC3339, req.DateFrom); err != nil {
				return apperr.Validation("date_from must be RFC 3339")
			}
		}
		if req.DateTo != "" {
			if dr.To, err = time.Parse(time.RFC3339, req.DateTo); err != nil {
				return apperr.Validation("date_to must be RFC 3339")
			}
		}
		q.DateRange = dr
	}

	if err := q.Normalize(); err != nil {
		return err
	}
	resp, err := s.engine.Search(c.Request().Context(), claims.TenantID, q)
	if err != nil {
		return err
	}

	items := make([]map[string]interface{}, 0, len(resp.Items))
	for _, r := range resp.Items {
		items = append(items, map[string]interface{}{"memory": r.Memory, "score": r.Score})
	}
	pageSize := q.Limit
	totalPages := (resp.Total + pageSize - 1) / pageSize
	return c.JSON(http.StatusOK, listEnvelope{
		Items:      items,
		Total:      int64(resp.Total),
		Page:       q.Offset/pageSize + 1,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// memoryStats serves the tenant's aggregate counters, cached briefly since
// the aggregation scans every row the tenant owns.
func (s *Server) memoryStats(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	cacheKey := "stats:" + claims.TenantID

	if s.repos.Cache != nil {
		if data, ok, err := s.repos.Cache.Get(ctx, cacheKey); err == nil && ok {
			return c.JSONBlob(http.StatusOK, data)
		}
	}

	stats, err := s.repos.Memories.GetStats(ctx, claims.TenantID)
	if err != nil {
		return err
	}
	if s.repos.Cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.repos.Cache.Set(ctx, cacheKey, data, 30*time.Second); err != nil {
				s.logger.WithError(err).Debug("failed to cache stats")
			}
		}
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) countMemories(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = claims.Subject
	}
	counts, err := s.repos.Memories.CountByUser(c.Request().Context(), claims.TenantID, userID)
	if err != nil {
		return err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"total": total, "by_kind": counts})
}

func (s *Server) archiveMemory(c echo.Context) error {
	return s.transitionMemory(c, func(m *domain.Memory) error { return m.Archive() })
}

func (s *Server) restoreMemory(c echo.Context) error {
	return s.transitionMemory(c, func(m *domain.Memory) error { return m.Restore() })
}

func (s *Server) transitionMemory(c echo.Context, transition func(*domain.Memory) error) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	m, err := s.repos.Memories.Get(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	expected := m.Version
	if err := transition(m); err != nil {
		return err
	}
	if err := s.repos.Memories.Update(ctx, m, expected); err != nil {
		return err
	}
	s.registry.Publish(subscription.TopicMemoryUpdated, eventPayload(m.TenantID, m.ID))
	return c.JSON(http.StatusOK, m)
}

// indexMemory refreshes the retrieval projection of m, computing the
// embedding when an embedder is wired.
func (s *Server) indexMemory(c echo.Context, m *domain.Memory) error {
	rec, err := domain.NewIndexRecord(m)
	if err != nil {
		return err
	}
	searchText := strings.Join([]string{
		m.Gist,
		strings.Join(m.Keywords.Values(), " "),
		strings.Join(m.Tags.Values(), " "),
		strings.Join(m.Topics.Values(), " "),
		m.Content,
	}, " ")

	embedding := m.Embedding
	if embedding == nil && s.engine != nil && s.engine.Embedder != nil {
		if vec, err := s.engine.Embedder.Embed(c.Request().Context(), searchText); err == nil {
			embedding = vec
		}
	}
	return s.repos.IndexRecords.Upsert(c.Request().Context(), rec, embedding, searchText)
}

func eventPayload(tenantID, id string) map[string]interface{} {
	return map[string]interface{}{"tenant_id": tenantID, "id": id}
}
