package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type realtimeEventPayload struct {
	ShareID   int64  `json:"shareId,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Action    string `json:"action,omitempty"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// handleEvents streams share-change notifications to the caller as server-sent events. A ready event is
// written once the subscription is registered.
func (h *httpHandler) handleEvents(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventReady, h.eventPayload(RealtimeMessage{Timestamp: h.clock()}))
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, h.eventPayload(message))
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, h.eventPayload(RealtimeMessage{Timestamp: h.clock()}))
			return true
		}
	})
}

func (h *httpHandler) eventPayload(message RealtimeMessage) realtimeEventPayload {
	return realtimeEventPayload{
		ShareID:   message.ShareID,
		Kind:      message.Kind,
		Action:    message.Action,
		Source:    realtimeSourceBackend,
		Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
	}
}
