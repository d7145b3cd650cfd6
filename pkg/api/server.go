// Package api is the HTTP surface: upload and lifecycle endpoints, the
// SSE progress stream, chat, export, and the model catalog.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tenderlens/tenderlens/pkg/config"
	"github.com/tenderlens/tenderlens/pkg/services"
	"github.com/tenderlens/tenderlens/pkg/version"
)

// Server wires the service layer to gin handlers.
type Server struct {
	svc    *services.Service
	cfg    config.Config
	logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(svc *services.Service, cfg config.Config, logger *slog.Logger) *Server {
	return &Server{svc: svc, cfg: cfg, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", s.healthHandler)

		api.POST("/analyze", s.createAnalysisHandler)
		api.GET("/analyses", s.listAnalysesHandler)

		one := api.Group("/analyze/:id")
		{
			one.GET("", s.getAnalysisHandler)
			one.GET("/stream", s.streamHandler)
			one.POST("/cancel", s.cancelHandler)
			one.DELETE("", s.deleteHandler)
			one.GET("/export", s.exportHandler)
			one.GET("/documents/:filename/content", s.documentContentHandler)
			one.POST("/chat", s.chatHandler)
			one.GET("/chat/history", s.chatHistoryHandler)
		}

		api.GET("/models", s.listModelsHandler)
		api.GET("/models/search", s.searchModelsHandler)
	}

	return router
}

// corsMiddleware allows the configured frontend origins. "*" or an
// empty allowlist permits any origin, which suits local development.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowAll := false
	allowed := map[string]bool{}
	for _, origin := range strings.Split(s.cfg.AllowedOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		} else if origin != "" {
			allowed[origin] = true
		}
	}
	allowAll = allowAll || len(allowed) == 0

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full()})
}
