package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StreamEvents handles GET /api/events/stream as server-sent events. The
// first event is always "connected".
func (h *Handler) StreamEvents(c *gin.Context) {
	if h.events == nil {
		respondError(c, http.StatusServiceUnavailable, "Live updates are not available")
		return
	}

	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case msg, ok := <-sub.Messages():
			if !ok {
				return false
			}
			c.SSEvent(string(msg.Type), msg)
			return true
		case t := <-keepAlive.C:
			c.SSEvent("ping", gin.H{"timestamp": t})
			return true
		}
	})
}
