package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/validate"
)

var allowedContentTypes = []string{echo.MIMEApplicationJSON}

// ValidateRequest checks content type and declared body size on
// body-carrying methods. A body of exactly maxBodyBytes is accepted; one
// byte more is refused before the handler ever reads it.
func ValidateRequest(maxBodyBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				return next(c)
			}

			// Bodyless action posts (archive, restore, verify) carry no
			// content type to check.
			if c.Request().ContentLength != 0 {
				if err := validate.ContentType(c.Request().Header.Get(echo.HeaderContentType), allowedContentTypes); err != nil {
					return err
				}
			}
			if err := validate.BodySize(c.Request().ContentLength, maxBodyBytes); err != nil {
				return err
			}
			if maxBodyBytes > 0 {
				c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes)
			}
			return next(c)
		}
	}
}
