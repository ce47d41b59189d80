package handlers

import (
	"io"
	"time"

	"potion_master/internal/models"

	"github.com/gin-gonic/gin"
)

// @Summary      Live event stream
// @Description  Server-Sent Events: connected, hardware_status, weight_update, preparation_update, preparation_complete, error.
// @Tags         events
// @Produce      text/event-stream
// @Success      200
// @Router       /api/events [get]
func (h *Handler) streamEvents(c *gin.Context) {
	o := h.feed.Subscribe("sse " + c.ClientIP())
	defer h.feed.Unsubscribe(o)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.feed.Send(o, models.EventConnected, gin.H{
		"message":   "connected",
		"timestamp": time.Now().UnixMilli(),
	})
	if h.services.Hardware != nil {
		h.feed.Send(o, models.EventHardwareStatus, h.services.Hardware.Status())
	}

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-o.Events():
			if !ok {
				if h.log != nil {
					h.log.Infow("sse_observer_closed", "observer", o.Name)
				}
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		}
	})
}
