package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tenderlens/tenderlens/pkg/models"
)

// Poll cadence for the SSE loop: tight while thinking tokens flow,
// relaxed otherwise.
const (
	streamActivePoll = 150 * time.Millisecond
	streamIdlePoll   = 800 * time.Millisecond
)

// streamHandler handles GET /api/analyze/:id/stream. It multiplexes
// both progress lanes into one SSE stream: durable events are replayed
// from index 0 so a reconnecting client never misses one, thinking
// tokens are forwarded live and lost on reconnect.
func (s *Server) streamHandler(c *gin.Context) {
	analysisID := c.Param("id")
	if _, err := s.svc.Get(c.Request.Context(), analysisID); err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	var (
		nextIndex  int64
		lastStatus models.AnalysisStatus
	)

	for {
		active := s.forwardThinking(c, analysisID)

		events, err := s.svc.Events(ctx, analysisID, nextIndex)
		if err != nil {
			s.logger.Error("Event poll failed", "analysis_id", analysisID, "error", err)
			return
		}
		for _, event := range events {
			s.writeEvent(c, sseName(event.Type), flattenEvent(event))
			nextIndex = event.Index + 1
		}

		detail, err := s.svc.Get(ctx, analysisID)
		if err != nil {
			s.logger.Error("Status poll failed", "analysis_id", analysisID, "error", err)
			return
		}
		if detail.Status != lastStatus {
			lastStatus = detail.Status
			s.writeEvent(c, "status", gin.H{
				"status":       strings.ToUpper(string(detail.Status)),
				"progress":     detail.Progress,
				"current_step": detail.CurrentStep,
			})
		}
		if detail.Status.IsTerminal() {
			s.writeEvent(c, "complete", detail)
			return
		}

		pause := streamIdlePoll
		if active {
			pause = streamActivePoll
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}

// forwardThinking drains the ephemeral lane and reports whether
// anything flowed.
func (s *Server) forwardThinking(c *gin.Context, analysisID string) bool {
	chunks := s.svc.Thinking().Drain(analysisID)
	for _, chunk := range chunks {
		s.writeEvent(c, "thinking", chunk)
	}
	return len(chunks) > 0
}

// flattenEvent lifts the payload next to the envelope fields, the
// shape streaming clients consume directly.
func flattenEvent(event *models.Event) map[string]any {
	out := make(map[string]any, len(event.Data)+3)
	for k, v := range event.Data {
		out[k] = v
	}
	out["event_type"] = event.Type
	out["timestamp"] = event.CreatedAt.Format(time.RFC3339Nano)
	out["index"] = event.Index
	return out
}

// sseName maps durable event types to SSE event names.
func sseName(eventType string) string {
	switch eventType {
	case models.EventMetricsUpdate:
		return "metrics"
	case models.EventError:
		return "error_event"
	default:
		return "progress"
	}
}

func (s *Server) writeEvent(c *gin.Context, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode SSE payload", "event", name, "error", err)
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, data)
	c.Writer.Flush()
}
