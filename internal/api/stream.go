package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

// parseTopics reads a comma-separated list of disaster types. An empty list
// subscribes to everything.
func parseTopics(s string) ([]string, error) {
	var topics []string
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, ok := models.ParseAlertTarget(part)
		if !ok {
			return nil, fmt.Errorf("%w: unknown stream type %q", models.ErrInvalidInput, part)
		}
		topics = append(topics, string(t))
	}
	return lo.Uniq(topics), nil
}

// streamEvents serves the real-time feed as Server-Sent Events until the
// client goes away or the hub closes.
func (h *Handler) streamEvents(c *gin.Context) {
	topics, err := parseTopics(c.Query("types"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	id, ch := h.stream.Subscribe(topics...)
	defer h.stream.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := h.clock.NewTicker(h.keepAlive)
	defer ticker.Stop()

	var seq uint64
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			seq++
			c.Render(-1, sse.Event{
				Id:    strconv.FormatUint(seq, 10),
				Event: msg.Event,
				Data:  msg,
			})
			c.Writer.Flush()
		case <-ticker.Chan():
			c.Render(-1, sse.Event{Event: "keepalive", Data: h.clock.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}
