package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenderlens/tenderlens/pkg/services"
	"github.com/tenderlens/tenderlens/pkg/store"
)

// noAPIKeyMessage matches the failure reason recorded on runs launched
// without a key, so the UI shows the same text everywhere.
const noAPIKeyMessage = "OpenRouter API key not configured. Set it in Settings."

// abortWithServiceError maps service-layer errors to HTTP responses.
func abortWithServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": "analysis is not completed"})
	case errors.Is(err, services.ErrNoAPIKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": noAPIKeyMessage})
	case errors.Is(err, services.ErrExportUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export service not configured"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
