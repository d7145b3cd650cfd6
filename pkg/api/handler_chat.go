package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tenderlens/tenderlens/pkg/services"
	"github.com/tenderlens/tenderlens/pkg/store"
)

type chatRequest struct {
	Message string `json:"message"`
}

// chatHandler handles POST /api/analyze/:id/chat. The answer streams
// back as SSE data frames carrying {"chunk": ...} objects, closed with
// a [DONE] marker. Failures after the stream opened arrive in-band as
// {"error": ...}.
func (s *Server) chatHandler(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")

	_, err := s.svc.Chat(c.Request.Context(), c.Param("id"), req.Message, func(chunk string) {
		s.writeData(c, gin.H{"chunk": chunk})
	})
	if err != nil {
		// Gating errors surface before any chunk was written, but the
		// SSE headers are already committed; report in-band either way.
		s.logger.Error("Chat failed", "analysis_id", c.Param("id"), "error", err)
		s.writeData(c, gin.H{"error": chatErrorMessage(err)})
		return
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "analysis not found"
	case errors.Is(err, services.ErrNotCompleted):
		return "analysis is not completed"
	case errors.Is(err, services.ErrNoAPIKey):
		return noAPIKeyMessage
	default:
		return "failed to answer the question"
	}
}

// chatHistoryHandler handles GET /api/analyze/:id/chat/history.
func (s *Server) chatHistoryHandler(c *gin.Context) {
	msgs, err := s.svc.ChatHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) writeData(c *gin.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode chat payload", "error", err)
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}
