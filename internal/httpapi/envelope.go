package httpapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/security"
	"github.com/evalgo/memstore/internal/httpapi/middleware"
	"github.com/evalgo/memstore/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// listEnvelope is the wire shape of every list response.
type listEnvelope struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

func envelope[T any](page store.Page[T]) listEnvelope {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	return listEnvelope{
		Items:      items,
		Total:      page.Total,
		Page:       page.PageNum,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
}

// paging parses page/page_size query parameters: an explicit page_size of 0
// is a validation error, anything above the cap is clamped to it.
func paging(c echo.Context) (page, pageSize int, err error) {
	page = 1
	pageSize = defaultPageSize

	if raw := c.QueryParam("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, apperr.Validation("page must be a positive integer")
		}
	}
	if raw := c.QueryParam("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 0 {
			return 0, 0, apperr.Validation("page_size must be a non-negative integer")
		}
		if pageSize == 0 {
			return 0, 0, apperr.Validation("page_size must be at least 1")
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
	}
	return page, pageSize, nil
}

// claimsFor returns the request's verified claims; the authentication stage
// guarantees presence on every route under the api group.
func claimsFor(c echo.Context) (security.Claims, error) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return security.Claims{}, apperr.Authentication("authentication failed")
	}
	return claims, nil
}
