package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
	"github.com/evalgo/memstore/internal/subscription"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) createSession(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	sess, err := domain.NewSession(claims.TenantID, claims.Subject)
	if err != nil {
		return err
	}
	sess.Title = req.Title

	if err := s.repos.Sessions.Create(c.Request().Context(), sess); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) getSession(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	sess, err := s.repos.Sessions.Get(c.Request().Context(), claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) listSessions(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	page, pageSize, err := paging(c)
	if err != nil {
		return err
	}
	result, err := s.repos.Sessions.List(c.Request().Context(), store.ListFilter{
		TenantID: claims.TenantID,
		UserID:   claims.Subject,
		Status:   domain.StatusActive,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope(result))
}

func (s *Server) deleteSession(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.repos.Sessions.Get(ctx, claims.TenantID, c.Param("id")); err != nil {
		return err
	}
	// Cascades to the session's turns and their index records.
	if err := s.repos.Sessions.DeleteCascade(ctx, claims.TenantID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type appendTurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Dehydrate folds the turn into an Episodic memory synchronously
	// instead of waiting for the next consolidation pass.
	Dehydrate bool `json:"dehydrate"`
}

func (s *Server) appendTurn(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req appendTurnRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	ctx := c.Request().Context()
	sess, err := s.repos.Sessions.Get(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return err
	}

	turn, err := domain.NewTurn(claims.TenantID, sess.ID, domain.Role(req.Role), req.Content)
	if err != nil {
		return err
	}
	if err := s.repos.Turns.Create(ctx, turn); err != nil {
		return err
	}

	expected := sess.Version
	sess.RecordTurn()
	if err := s.repos.Sessions.Update(ctx, sess, expected); err != nil {
		return err
	}

	if req.Dehydrate && s.dehydrator != nil {
		m, err := s.dehydrator.Dehydrate(ctx, turn, claims.Subject)
		if err != nil {
			s.logger.WithError(err).WithField("turn", turn.ID).Warn("synchronous dehydration failed")
		} else if m != nil {
			s.registry.Publish(subscription.TopicMemoryCreated, eventPayload(m.TenantID, m.ID))
		}
	}
	return c.JSON(http.StatusCreated, turn)
}

// listTurns serves the recent-context query: the most recent turns of a
// session, no scoring involved.
func (s *Server) listTurns(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return apperr.Validation("limit must be a positive integer")
		}
		if limit > 100 {
			limit = 100
		}
	}
	ctx := c.Request().Context()
	if _, err := s.repos.Sessions.Get(ctx, claims.TenantID, c.Param("id")); err != nil {
		return err
	}
	turns, err := s.engine.RecentTurns(ctx, s.repos.Turns, claims.TenantID, c.Param("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": turns, "total": len(turns)})
}
