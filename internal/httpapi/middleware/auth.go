package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/security"
)

// Authenticate extracts the request credential, validates it, and injects
// the resulting claims into the context for every later stage.
func Authenticate(auth security.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := security.ExtractCredential(c.Request().Header)
			claims, err := auth.Authenticate(credential)
			if err != nil {
				return err
			}
			SetClaims(c, claims)
			return next(c)
		}
	}
}

// Authorize demands the permission for resource with the action implied by
// the request method. It requires Authenticate to have run.
func Authorize(resource security.Resource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := GetClaims(c)
			if !ok {
				return apperr.Authentication("authentication failed")
			}
			requested := security.Permission{Resource: resource, Action: actionFor(c.Request().Method)}
			if !security.Authorize(claims, requested) {
				return apperr.Authorization("%s on %s is not permitted", requested.Action, requested.Resource)
			}
			return next(c)
		}
	}
}

func actionFor(method string) security.Action {
	switch method {
	case http.MethodGet, http.MethodHead:
		return security.ActionRead
	case http.MethodDelete:
		return security.ActionDelete
	default:
		return security.ActionWrite
	}
}
