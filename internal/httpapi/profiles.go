package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/security"
	"github.com/evalgo/memstore/internal/subscription"
)

// profileUserID resolves which user's profile the request addresses; plain
// users may only touch their own, tenant admins any user in their tenant.
func profileUserID(c echo.Context, claims security.Claims) (string, error) {
	userID := c.Param("user_id")
	if userID == "" {
		return claims.Subject, nil
	}
	if userID != claims.Subject && !claims.IsAdmin() && claims.Role != security.RoleTenantAdmin {
		return "", apperr.Authorization("cannot access another user's profile")
	}
	return userID, nil
}

func (s *Server) createProfile(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	var req struct {
		Identity string `json:"identity"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	p, err := domain.NewProfile(claims.TenantID, claims.Subject)
	if err != nil {
		return err
	}
	p.Identity = req.Identity

	if err := s.repos.Profiles.Create(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) getProfile(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	userID, err := profileUserID(c, claims)
	if err != nil {
		return err
	}
	p, err := s.repos.Profiles.Get(c.Request().Context(), claims.TenantID, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type updateProfileRequest struct {
	Identity    string `json:"identity"`
	Preferences []struct {
		Key    string `json:"key"`
		Value  string `json:"value"`
		Reason string `json:"reason"`
	} `json:"preferences"`
	Interests []string `json:"interests"`
	Tools     []string `json:"tools"`
	Hours     []struct {
		Day   string `json:"day"`
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"working_hours"`
	Version int64 `json:"version"`
}

func (s *Server) updateProfile(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	userID, err := profileUserID(c, claims)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	ctx := c.Request().Context()
	p, err := s.repos.Profiles.Get(ctx, claims.TenantID, userID)
	if err != nil {
		return err
	}
	if req.Version != 0 && req.Version != p.Version {
		return apperr.VersionConflict("profile for %s is at version %d, not %d", userID, p.Version, req.Version)
	}
	expected := p.Version

	if req.Identity != "" {
		p.SetIdentity(req.Identity)
	}
	for _, pref := range req.Preferences {
		if err := p.SetPreference(pref.Key, pref.Value, pref.Reason); err != nil {
			return err
		}
	}
	for _, interest := range req.Interests {
		p.AddInterest(interest)
	}
	for _, tool := range req.Tools {
		p.AddTool(tool)
	}
	for _, h := range req.Hours {
		if err := p.SetWorkingHours(h.Day, h.Start, h.End); err != nil {
			return err
		}
	}

	if p.Version == expected {
		return c.JSON(http.StatusOK, p)
	}
	if err := s.repos.Profiles.Update(ctx, p, expected); err != nil {
		return err
	}
	s.registry.Publish(subscription.TopicProfileUpdated, eventPayload(p.TenantID, p.UserID))
	return c.JSON(http.StatusOK, p)
}

type addFactRequest struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func (s *Server) addProfileFact(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	userID, err := profileUserID(c, claims)
	if err != nil {
		return err
	}
	var req addFactRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}

	ctx := c.Request().Context()
	p, err := s.repos.Profiles.Get(ctx, claims.TenantID, userID)
	if err != nil {
		return err
	}
	expected := p.Version
	fact, err := p.AddFact(req.Text, req.Category, req.Confidence)
	if err != nil {
		return err
	}
	if err := s.repos.Profiles.Update(ctx, p, expected); err != nil {
		return err
	}
	s.registry.Publish(subscription.TopicProfileUpdated, eventPayload(p.TenantID, p.UserID))
	return c.JSON(http.StatusCreated, fact)
}

func (s *Server) verifyProfileFact(c echo.Context) error {
	claims, err := claimsFor(c)
	if err != nil {
		return err
	}
	userID, err := profileUserID(c, claims)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := s.repos.Profiles.Get(ctx, claims.TenantID, userID)
	if err != nil {
		return err
	}
	expected := p.Version
	if err := p.VerifyFact(c.Param("fact_id")); err != nil {
		return err
	}
	if p.Version != expected {
		if err := s.repos.Profiles.Update(ctx, p, expected); err != nil {
			return err
		}
		s.registry.Publish(subscription.TopicProfileUpdated, eventPayload(p.TenantID, p.UserID))
	}
	return c.JSON(http.StatusOK, p)
}
