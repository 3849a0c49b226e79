package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// securityHeaders is the fixed browser-hardening set every response
// carries.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
}

// SecurityHeaders stamps the fixed header set onto every response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for name, value := range securityHeaders {
				h.Set(name, value)
			}
			return next(c)
		}
	}
}

const corsMaxAgeSeconds = 86400

// CORS echoes the request origin back when it is allowed and answers
// preflight OPTIONS with 204. An empty allow list disables cross-origin
// access entirely; "*" allows any origin.
func CORS(allowedOrigins []string) echo.MiddlewareFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			h := c.Response().Header()

			if origin != "" {
				_, ok := allowed[origin]
				if allowAll || ok {
					h.Set(echo.HeaderAccessControlAllowOrigin, origin)
					h.Set(echo.HeaderVary, echo.HeaderOrigin)
				}
			}

			if c.Request().Method == http.MethodOptions {
				h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set(echo.HeaderAccessControlAllowHeaders, "Origin, Content-Type, Accept, Authorization, X-API-Key")
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(corsMaxAgeSeconds))
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
