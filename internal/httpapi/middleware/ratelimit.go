package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/evalgo/memstore/internal/ratelimit"
	"github.com/evalgo/memstore/internal/security"
)

// RateLimit gates every request through the limiter and stamps the
// X-RateLimit triplet. It runs before authentication, so the client
// identity falls back from the bearer token's unverified subject (good
// enough for bucketing; authority still requires the later verification
// stage) through API key and addressing headers.
func RateLimit(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientID := ratelimit.ClientIdentity(c.Request(), unverifiedClaims(c.Request().Header))

			decision, err := limiter.Check(c.Request().Context(), clientID)
			if err != nil {
				return err
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.ResetAt.IsZero() {
				h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}

			if !decision.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Round(time.Second).Seconds())))
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too Many Requests"})
			}
			return next(c)
		}
	}
}

// unverifiedClaims pulls the subject out of a bearer token without
// validating it, purely so a token-carrying client is throttled by subject
// rather than by source address.
func unverifiedClaims(h http.Header) *security.Claims {
	cred := security.ExtractCredential(h)
	if cred.Kind != security.CredentialBearer {
		return nil
	}
	token, err := jwt.ParseInsecure([]byte(cred.Value))
	if err != nil || token.Subject() == "" {
		return nil
	}
	return &security.Claims{Subject: token.Subject()}
}
