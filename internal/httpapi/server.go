// Package httpapi exposes the memory store over REST and WebSocket. The
// handlers are thin adapters onto the repository, retrieval, and
// integrator packages; every cross-cutting concern lives in the middleware
// chain, composed outermost to innermost in the fixed stage order.
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/evalgo/memstore/internal/apperr"
	"github.com/evalgo/memstore/internal/httpapi/middleware"
	"github.com/evalgo/memstore/internal/integrator"
	"github.com/evalgo/memstore/internal/ratelimit"
	"github.com/evalgo/memstore/internal/retrieval"
	"github.com/evalgo/memstore/internal/security"
	"github.com/evalgo/memstore/internal/store"
	"github.com/evalgo/memstore/internal/subscription"
	"github.com/evalgo/memstore/internal/version"
)

// Config carries the boundary tunables the server needs beyond its wired
// collaborators.
type Config struct {
	AllowedOrigins []string
	MaxRequestSize int64
}

// Server wires the echo instance, the service handles, and the middleware
// chain.
type Server struct {
	echo       *echo.Echo
	repos      store.Repositories
	engine     *retrieval.Engine
	dehydrator *integrator.DehydrationService
	registry   *subscription.Registry
	logger     *logrus.Entry
}

// NewServer assembles the full middleware chain and route table.
func NewServer(
	cfg Config,
	repos store.Repositories,
	engine *retrieval.Engine,
	dehydrator *integrator.DehydrationService,
	registry *subscription.Registry,
	limiter *ratelimit.Limiter,
	auth security.Authenticator,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		echo:       e,
		repos:      repos,
		engine:     engine,
		dehydrator: dehydrator,
		registry:   registry,
		logger:     logrus.WithField("component", "httpapi"),
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	// Stage order: headers -> CORS -> rate limit -> authenticate ->
	// authorize (per route group) -> validate -> handler.
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.CORS(cfg.AllowedOrigins))
	if limiter != nil {
		e.Use(middleware.RateLimit(limiter))
	}

	e.GET("/health", s.handleHealth)

	api := e.Group("", middleware.Authenticate(auth))
	api.GET("/ws", s.handleWS)

	validated := middleware.ValidateRequest(cfg.MaxRequestSize)

	memories := api.Group("/memories", middleware.Authorize(security.ResourceMemory), validated)
	memories.POST("", s.createMemory)
	memories.GET("", s.listMemories)
	memories.POST("/search", s.searchMemories)
	memories.GET("/stats", s.memoryStats)
	memories.GET("/count", s.countMemories)
	memories.GET("/:id", s.getMemory)
	memories.PUT("/:id", s.updateMemory)
	memories.DELETE("/:id", s.deleteMemory)
	memories.POST("/:id/archive", s.archiveMemory)
	memories.POST("/:id/restore", s.restoreMemory)

	sessions := api.Group("/sessions", middleware.Authorize(security.ResourceSession), validated)
	sessions.POST("", s.createSession)
	sessions.GET("", s.listSessions)
	sessions.GET("/:id", s.getSession)
	sessions.DELETE("/:id", s.deleteSession)
	sessions.POST("/:id/turns", s.appendTurn)
	sessions.GET("/:id/turns", s.listTurns)

	patterns := api.Group("/patterns", middleware.Authorize(security.ResourcePattern), validated)
	patterns.POST("", s.createPattern)
	patterns.GET("", s.listPatterns)
	patterns.GET("/:id", s.getPattern)
	patterns.PUT("/:id", s.updatePattern)
	patterns.DELETE("/:id", s.deletePattern)
	patterns.POST("/:id/outcome", s.recordPatternOutcome)

	profiles := api.Group("/profiles", middleware.Authorize(security.ResourceProfile), validated)
	profiles.POST("", s.createProfile)
	profiles.GET("/:user_id", s.getProfile)
	profiles.PUT("/:user_id", s.updateProfile)
	profiles.POST("/:user_id/facts", s.addProfileFact)
	profiles.POST("/:user_id/facts/:fact_id/verify", s.verifyProfileFact)

	entities := api.Group("/entities", middleware.Authorize(security.ResourceEntity), validated)
	entities.POST("", s.createEntity)
	entities.GET("/:id", s.getEntity)
	entities.GET("/:id/relationships", s.entityRelationships)
	entities.POST("/:id/relationships", s.createRelationship)

	return s
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func (s *Server) handleHealth(c echo.Context) error {
	build := version.Get()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "memstored",
		"version": build.Version,
		"details": build,
	})
}

func (s *Server) handleWS(c echo.Context) error {
	return s.registry.ServeWS(c.Response(), c.Request())
}

// errorHandler maps the error taxonomy to HTTP exactly once, at the
// boundary; handlers below it return typed errors and never write status
// codes themselves.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	kind := apperr.KindDatabase
	message := "internal error"

	switch typed := err.(type) {
	case *apperr.Error:
		kind = typed.Kind
		status = apperr.HTTPStatus(kind)
		message = typed.Message
	case *echo.HTTPError:
		status = typed.Code
		kind = kindForStatus(status)
		if msg, ok := typed.Message.(string); ok {
			message = msg
		}
	default:
		logrus.WithError(err).Error("unclassified handler error")
	}

	correlationID := c.Response().Header().Get(echo.HeaderXRequestID)
	body := map[string]interface{}{
		"error": map[string]interface{}{
			"kind":           string(kind),
			"message":        message,
			"correlation_id": correlationID,
		},
	}
	if writeErr := c.JSON(status, body); writeErr != nil {
		logrus.WithError(writeErr).Error("failed to write error response")
	}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusBadRequest:
		return apperr.KindValidation
	case http.StatusUnauthorized:
		return apperr.KindAuthentication
	case http.StatusForbidden:
		return apperr.KindAuthorization
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConflict
	case http.StatusRequestEntityTooLarge:
		return apperr.KindPayloadTooLarge
	case http.StatusTooManyRequests:
		return apperr.KindRateLimited
	default:
		return apperr.KindDatabase
	}
}
