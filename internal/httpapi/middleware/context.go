// Package middleware composes the request security stages in their fixed
// order: security headers, CORS, rate limiting, authentication,
// authorization, then request validation. Every stage is an
// echo.MiddlewareFunc closing over next.
package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/security"
)

const contextKeyClaims = "claims"

// SetClaims stores verified claims in the request context for handlers and
// later stages.
func SetClaims(c echo.Context, claims security.Claims) {
	c.Set(contextKeyClaims, claims)
}

// GetClaims retrieves the verified claims placed by the authentication
// stage.
func GetClaims(c echo.Context) (security.Claims, bool) {
	claims, ok := c.Get(contextKeyClaims).(security.Claims)
	return claims, ok
}
