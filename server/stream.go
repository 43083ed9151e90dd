package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// streamLogs sends every entry as a "log" server-sent event and ends with a
// "complete" event carrying the final run status. The tail stops as soon as
// the client goes away, since it runs on the request context.
func (h *handler) streamLogs(c *gin.Context, runID string, after *time.Time) {
	ctx := c.Request.Context()
	events, err := h.logs.Tail(ctx, runID, after)
	if err != nil {
		h.fail(c, "run", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.log.Debug(ctx, "Log stream opened", "run_id", runID)
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		if ev.Complete() {
			c.SSEvent("complete", ev)
			return false
		}
		c.SSEvent("log", ev)
		return true
	})
	h.log.Debug(ctx, "Log stream closed", "run_id", runID)
}
