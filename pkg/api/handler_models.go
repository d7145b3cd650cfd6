package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenderlens/tenderlens/pkg/services"
)

// listModelsHandler handles GET /api/models: the curated catalog of
// models able to produce structured output.
func (s *Server) listModelsHandler(c *gin.Context) {
	infos, err := s.svc.ListModels(c.Request.Context())
	if err != nil {
		s.abortModelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": infos})
}

// searchModelsHandler handles GET /api/models/search?q=.
func (s *Server) searchModelsHandler(c *gin.Context) {
	infos, err := s.svc.SearchModels(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.abortModelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": infos})
}

func (s *Server) abortModelError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNoAPIKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": noAPIKeyMessage})
		return
	}
	s.logger.Error("Model catalog request failed", "error", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch model catalog"})
}
