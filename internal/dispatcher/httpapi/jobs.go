package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

type jobsPage struct {
	Jobs       interface{} `json:"jobs"`
	Total      int         `json:"total"`
	Offset     int         `json:"offset"`
	Limit      int         `json:"limit"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// handleListJobs implements GET /jobs (spec §6): status/repo/branch
// filters, limit (default 20, max 100), offset or cursor pagination.
func (s *Server) handleListJobs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, ErrBadRequest("invalid limit"))
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, ErrBadRequest("invalid offset"))
			return
		}
		offset = n
	}

	filter := statusstore.JobFilter{
		Status: c.Query("status"),
		Repo:   c.Query("repo"),
		Branch: c.Query("branch"),
		Limit:  limit,
		Offset: offset,
		Cursor: c.Query("cursor"),
	}

	result, err := s.Store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, ErrInternal(err))
		return
	}

	c.JSON(http.StatusOK, jobsPage{
		Jobs:       result.Jobs,
		Total:      result.Total,
		Offset:     offset,
		Limit:      limit,
		NextCursor: result.NextCursor,
	})
}

// handleGetJob implements GET /jobs/{id}.
func (s *Server) handleGetJob(c *gin.Context) {
	id := c.Param("id")
	job, err := s.Store.GetJob(c.Request.Context(), id)
	if err != nil {
		if err == statusstore.ErrNotFound {
			respondError(c, ErrNotFound("job not found"))
			return
		}
		respondError(c, ErrInternal(err))
		return
	}
	c.JSON(http.StatusOK, job)
}
