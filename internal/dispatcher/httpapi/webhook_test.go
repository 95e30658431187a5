package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibid-labs/raibid-ci/internal/config"
	"github.com/raibid-labs/raibid-ci/internal/dispatcher/provider"
	"github.com/raibid-labs/raibid-ci/internal/queue"
	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

func newTestServer() (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	s := &Server{
		Store:     statusstore.NewMemory(),
		Queue:     queue.NewMemory(),
		Providers: provider.NewRegistry(),
		Webhook:   config.WebhookConfig{GitHubSecret: "s3cr3t"},
	}
	return s, s.Router()
}

func githubPushBody(repo, ref, after string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"ref":   "refs/heads/" + ref,
		"after": after,
		"repository": map[string]string{
			"full_name": repo,
		},
	})
	return body
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func doWebhook(r *gin.Engine, body []byte, secret string, event string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", signBody(secret, body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleWebhook_AcceptsAndEnqueues(t *testing.T) {
	_, r := newTestServer()
	body := githubPushBody("acme/widgets", "main", "deadbeef")

	w := doWebhook(r, body, "s3cr3t", "push")
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp acceptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
}

func TestHandleWebhook_IdempotentReplay(t *testing.T) {
	_, r := newTestServer()
	body := githubPushBody("acme/widgets", "main", "deadbeef")

	first := doWebhook(r, body, "s3cr3t", "push")
	require.Equal(t, http.StatusAccepted, first.Code)
	var firstResp acceptResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := doWebhook(r, body, "s3cr3t", "push")
	require.Equal(t, http.StatusAccepted, second.Code)
	var secondResp acceptResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	assert.Equal(t, firstResp.JobID, secondResp.JobID)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	_, r := newTestServer()
	body := githubPushBody("acme/widgets", "main", "deadbeef")

	w := doWebhook(r, body, "wrong-secret", "push")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhook_NonPushEventIgnored(t *testing.T) {
	_, r := newTestServer()
	body := githubPushBody("acme/widgets", "main", "deadbeef")

	w := doWebhook(r, body, "s3cr3t", "pull_request")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	_, r := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/bitbucket", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleWebhook_MissingRequiredField(t *testing.T) {
	_, r := newTestServer()
	// after is missing -> fails pushValidator's required tag.
	body := githubPushBody("acme/widgets", "main", "")

	w := doWebhook(r, body, "s3cr3t", "push")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCancelJob(t *testing.T) {
	s, r := newTestServer()
	body := githubPushBody("acme/widgets", "main", "deadbeef")
	w := doWebhook(r, body, "s3cr3t", "push")
	var resp acceptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+resp.JobID+"/cancel", nil)
	cancelW := httptest.NewRecorder()
	r.ServeHTTP(cancelW, req)
	assert.Equal(t, http.StatusAccepted, cancelW.Code)

	job, err := s.Store.GetJob(req.Context(), resp.JobID)
	require.NoError(t, err)
	assert.True(t, job.CancelRequested)
}

func TestHandleCancelJob_NotFound(t *testing.T) {
	_, r := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/jobs/missing/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
