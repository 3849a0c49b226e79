package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/subscription"
)

type createEntityRequest struct {
	Type       string            `json:"entity_type"`
	Name       string            `json:"name"`
	Aliases    []string          `json:"aliases"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) createEntity(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req createEntityRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	e, err := domain.NewEntity(claims.TenantID, domain.EntityType(req.Type), req.Name)
	if err != nil {
		return err
	}
	for _, alias := range req.Aliases {
		e.AddAlias(alias)
	}
	for key, value := range req.Attributes {
		if err := e.SetAttribute(key, value); err != nil {
			return err
		}
	}
	e.Version = 1

	if err := s.repos.Entities.CreateEntity(c.Request().Context(), e); err != nil {
		return err
	}
	s.registry.Publish(subscription.TopicEntityCreated, eventPayload(e.TenantID, e.ID))
	return c.JSON(http.StatusCreated, e)
}

func (s *Server) getEntity(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	e, err := s.repos.Entities.GetEntity(c.Request().Context(), claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

// entityRelationships is the single-step adjacency lookup; multi-hop graph
// queries are deliberately not offered.
func (s *Server) entityRelationships(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.repos.Entities.GetEntity(ctx, claims.TenantID, c.Param("id")); err != nil {
		return err
	}
	rels, err := s.repos.Entities.AdjacentTo(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": rels, "total": len(rels)})
}

type createRelationshipRequest struct {
	ToEntityID string  `json:"to_entity_id"`
	Type       string  `json:"relation_type"`
	Strength   float64 `json:"strength"`
}

func (s *Server) createRelationship(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req createRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	ctx := c.Request().Context()
	fromID := c.Param("id")
	if _, err := s.repos.Entities.GetEntity(ctx, claims.TenantID, fromID); err != nil {
		return err
	}
	if _, err := s.repos.Entities.GetEntity(ctx, claims.TenantID, req.ToEntityID); err != nil {
		return err
	}

	rel, err := domain.NewRelationship(claims.TenantID, fromID, req.ToEntityID, domain.RelationType(req.Type))
	if err != nil {
		return err
	}
	if req.Strength > 0 {
		rel.Strength = req.Strength
		if rel.Strength > 1 {
			rel.Strength = 1
		}
	}
	if err := s.repos.Entities.CreateRelationship(ctx, rel); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rel)
}
