package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/clinical-scribe/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg            *config.Config
	sessionHandler *Session
	socketHandler  *SessionSocket
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, sessionHandler *Session, socketHandler *SessionSocket) *Router {
	return &Router{
		cfg:            cfg,
		sessionHandler: sessionHandler,
		socketHandler:  socketHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// Live consultation stream
	if rt.socketHandler != nil {
		e.GET("/ws/session", rt.socketHandler.Handle)
	} else {
		e.GET("/ws/session", rt.notImplemented)
	}

	// API v1 group
	v1 := e.Group("/v1")

	rt.setupSessionRoutes(v1)
}

// setupSessionRoutes configures edit, regeneration and suggestion routes
func (rt *Router) setupSessionRoutes(g *echo.Group) {
	sessions := g.Group("/sessions")

	if rt.sessionHandler != nil {
		sessions.POST("/:id/transcript-edits", rt.sessionHandler.AddTranscriptEdit)
		sessions.POST("/:id/structured-edits", rt.sessionHandler.AddStructuredEdit)
		sessions.POST("/:id/regenerate", rt.sessionHandler.Regenerate)
		sessions.GET("/:id/state", rt.sessionHandler.GetState)
		sessions.GET("/:id/suggestions", rt.sessionHandler.GetSuggestions)
		sessions.POST("/:id/feedback", rt.sessionHandler.SubmitFeedback)
		g.GET("/suggestions", rt.sessionHandler.QuerySuggestions)
	} else {
		sessions.Any("/*", rt.notImplemented)
		g.GET("/suggestions", rt.notImplemented)
	}
}

// notImplemented returns 501 Not Implemented response
func (rt *Router) notImplemented(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, map[string]interface{}{
		"error":   "This endpoint is not yet implemented",
		"path":    c.Request().URL.Path,
		"method":  c.Request().Method,
		"message": "Please initialize the required handler in main.go",
	})
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	env := "production"
	if rt.cfg != nil {
		env = rt.cfg.Server.Environment
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": env,
	})
}
