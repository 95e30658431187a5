package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raibid-labs/raibid-ci/internal/domain"
	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

// logPollInterval bounds how often the dispatcher re-checks the log
// stream for new entries while tailing; keepAliveInterval bounds the idle
// gap between frames (spec §4.1: "Keep-alive via comment frames at ≤ 1s
// idle").
const (
	logPollInterval   = 150 * time.Millisecond
	keepAliveInterval = 1 * time.Second
)

// handleStreamLogs implements GET /jobs/{id}/logs (spec §4.1's "Log
// fan-out" and §6's event-stream framing), grounded on auleOS's
// pkg/kernel/events.go handleConversationSSE: a raw http.Flusher loop,
// since gin's strict-handler style doesn't compose well with a
// long-lived streaming response.
func (s *Server) handleStreamLogs(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.Store.GetJob(c.Request.Context(), id); err != nil {
		if err == statusstore.ErrNotFound {
			respondError(c, ErrNotFound("job not found"))
			return
		}
		respondError(c, ErrInternal(err))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, ErrInternal(fmt.Errorf("streaming unsupported by response writer")))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	lastID := ""
	lastFrame := time.Now()

	for {
		select {
		case <-ctx.Done():
			// Subscriber disconnect releases the reader promptly (spec §5).
			return
		default:
		}

		entries, next, err := s.Store.ReadLogs(ctx, id, lastID, 100)
		if err != nil {
			return
		}
		if len(entries) > 0 {
			lastID = next
			if !writeBatch(c.Writer, flusher, entries) {
				return
			}
			lastFrame = time.Now()
			continue
		}

		job, err := s.Store.GetJob(ctx, id)
		if err != nil {
			return
		}
		if job.Status.Terminal() {
			// Drained to current end past a terminal status: close
			// (spec §4.1: "terminates when the Job reaches a terminal
			// state and the log substream has been drained to current
			// end").
			return
		}

		if time.Since(lastFrame) >= keepAliveInterval {
			if !writeKeepAlive(c.Writer, flusher) {
				return
			}
			lastFrame = time.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(logPollInterval):
		}
	}
}

func writeBatch(w http.ResponseWriter, flusher http.Flusher, entries []domain.LogEntry) bool {
	payload, err := json.Marshal(entries)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeKeepAlive(w http.ResponseWriter, flusher http.Flusher) bool {
	if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
