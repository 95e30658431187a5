package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

func TestHandleListJobs_FiltersAndPaginates(t *testing.T) {
	s, r := newTestServer()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		job := &domain.Job{ID: "job-" + string(rune('a'+i)), Repo: "acme/widgets", Status: domain.StatusPending}
		_, _, err := s.Store.CreateJob(ctx, job, job.ID)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs?repo=acme/widgets&limit=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var page jobsPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Jobs, 2)
}

func TestHandleListJobs_InvalidLimit(t *testing.T) {
	_, r := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/jobs?limit=notanumber", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetJob(t *testing.T) {
	s, r := newTestServer()
	ctx := context.Background()
	job := &domain.Job{ID: "job-x", Repo: "acme/widgets", Status: domain.StatusPending}
	_, _, err := s.Store.CreateJob(ctx, job, "job-x-key")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var got domain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "job-x", got.ID)
}

func TestHandleGetJob_NotFound(t *testing.T) {
	_, r := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
