package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type healthReport struct {
	Status       string                       `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
	PendingCount int64                        `json:"pending_count,omitempty"`
	HeldCount    int64                        `json:"held_count,omitempty"`
}

// handleHealth implements GET /health (spec §4.1, §6): per-dependency
// health plus the pending/held counts the external autoscaler needs
// (SPEC_FULL.md §4.3 expansion).
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	deps := map[string]dependencyStatus{
		"queue":        checkDependency(ctx, s.Queue.Ping),
		"status_store": checkDependency(ctx, s.Store.Ping),
	}

	status := "ok"
	code := http.StatusOK
	for _, d := range deps {
		if d.Status != "healthy" {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	report := healthReport{Status: status, Dependencies: deps}
	if pending, err := s.Queue.Pending(ctx); err == nil {
		report.PendingCount = pending.Count
		if pending.OldestIdle >= s.ReclaimThreshold && s.ReclaimThreshold > 0 {
			report.HeldCount = pending.Count
		}
	}

	c.JSON(code, report)
}

func (s *Server) handleHealthReady(c *gin.Context) {
	s.handleHealth(c)
}

func (s *Server) handleHealthLive(c *gin.Context) {
	c.Status(http.StatusOK)
}
