package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
	"github.com/evalgo/memstore/internal/subscription"
)

type createPatternRequest struct {
	Type        string   `json:"pattern_type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Problem     string   `json:"problem"`
	Solution    string   `json:"solution"`
	Trigger     string   `json:"trigger"`
	Context     string   `json:"context"`
	Examples    []string `json:"examples"`
	IsPublic    bool     `json:"is_public"`
	Tags        []string `json:"tags"`
}

func (s *Server) createPattern(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req createPatternRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	p, err := domain.NewPattern(claims.TenantID, claims.Subject, domain.PatternType(req.Type), req.Name)
	if err != nil {
		return err
	}
	p.Description = req.Description
	p.Problem = req.Problem
	p.Solution = req.Solution
	p.Trigger = req.Trigger
	p.Context = req.Context
	p.Examples = req.Examples
	p.SetPublic(req.IsPublic)
	for _, t := range req.Tags {
		p.AddTag(t)
	}
	p.Version = 1

	if err := s.repos.Patterns.Create(c.Request().Context(), p); err != nil {
		return err
	}
	s.registry.Publish(subscription.TopicPatternCreated, eventPayload(p.TenantID, p.ID))
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) getPattern(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	p, err := s.repos.Patterns.Get(c.Request().Context(), claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) listPatterns(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	page, pageSize, err := paging(c)
	if err != nil {
		return err
	}
	result, err := s.repos.Patterns.List(c.Request().Context(), store.ListFilter{
		TenantID: claims.TenantID,
		UserID:   c.QueryParam("user_id"),
		Status:   domain.StatusActive,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope(result))
}

type updatePatternRequest struct {
	Description string   `json:"description"`
	IsPublic    *bool    `json:"is_public"`
	Tags        []string `json:"tags"`
	Version     int64    `json:"version"`
}

func (s *Server) updatePattern(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req updatePatternRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	ctx := c.Request().Context()
	p, err := s.repos.Patterns.Get(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	if req.Version != 0 && req.Version != p.Version {
		return apperr.VersionConflict("pattern %s is at version %d, not %d", p.ID, p.Version, req.Version)
	}
	expected := p.Version

	if req.Description != "" {
		p.SetDescription(req.Description)
	}
	if req.IsPublic != nil {
		p.SetPublic(*req.IsPublic)
	}
	for _, t := range req.Tags {
		p.AddTag(t)
	}

	if p.Version == expected {
		return c.JSON(http.StatusOK, p)
	}
	if err := s.repos.Patterns.Update(ctx, p, expected); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) deletePattern(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.repos.Patterns.Get(ctx, claims.TenantID, c.Param("id")); err != nil {
		return err
	}
	if err := s.repos.Patterns.Delete(ctx, claims.TenantID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type patternOutcomeRequest struct {
	Outcome float64 `json:"outcome"`
}

func (s *Server) recordPatternOutcome(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req patternOutcomeRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	ctx := c.Request().Context()
	p, err := s.repos.Patterns.Get(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	expected := p.Version
	p.RecordOutcome(req.Outcome)
	if err := s.repos.Patterns.Update(ctx, p, expected); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
