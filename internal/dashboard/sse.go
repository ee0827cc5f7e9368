package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

// streamEvents streams a session's live feed as server-sent events. The
// stream closes when the client disconnects or the session's hub closes.
func (s *server) streamEvents(c *gin.Context) {
	sess, err := s.reg.Get(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	sub := sess.Feed().Subscribe()
	defer sub.Cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	writeSSE(c.Writer, "connected", fmt.Sprintf(`{"session_id":%q}`, sess.ID()))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", `{}`)
			flusher.Flush()
		case ev, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Error("marshal feed event", "error", err)
				continue
			}
			writeSSE(c.Writer, ev.Type, string(data))
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
