// Package api serves sessions over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mealchat"
	"mealchat/completion"
	"mealchat/conversation"
	"mealchat/session"
	"mealchat/store"
	"mealchat/triage"
	"mealchat/weekly"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the caller's identity. Authentication happens upstream.
const UserHeader = "X-User-ID"

const sessionKey = "session"

type Server struct {
	sessions *session.Manager
	router   *gin.Engine
}

func NewServer(sessions *session.Manager) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		sessions: sessions,
		router:   router,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", s.identify)
	{
		api.GET("/conversation", s.handleConversation)
		api.POST("/promptUser", s.handlePromptUser)
		api.POST("/generateMealPlan", s.handleGenerate)

		api.GET("/triage", s.handleTriage)
		api.POST("/triage/accept", s.handleDecide(true))
		api.POST("/triage/reject", s.handleDecide(false))

		api.POST("/plans", s.handleCreatePlan)
		api.GET("/plans", s.handleListPlans)
		api.GET("/plans/:id", s.handleGetPlan)
		api.GET("/plans/:id/days/:day/progress", s.handleProgress)
		api.POST("/plans/:id/days/:day/meals", s.handleAddMeals)
		api.PUT("/plans/:id/days/:day/meals", s.handleReplaceDay)

		api.GET("/favorites", s.handleFavorites)
		api.POST("/favorites/:mealID/toggle", s.handleToggleFavorite)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("API: Request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) identify(c *gin.Context) {
	sess, err := s.sessions.Get(c.GetHeader(UserHeader))
	if err != nil {
		abort(c, err)
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func current(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mealchat.ErrAuthenticationMissing):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrNoTriage),
		errors.Is(err, triage.ErrComplete):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotReady):
		return http.StatusPreconditionFailed
	case errors.Is(err, conversation.ErrEmptyUtterance),
		errors.Is(err, weekly.ErrUnknownDay),
		errors.Is(err, weekly.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, completion.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, completion.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("API: Request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
