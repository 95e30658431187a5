package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raibid-labs/raibid-ci/internal/domain"
	"github.com/raibid-labs/raibid-ci/internal/logging"
	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

// pushValidator checks a parsed provider.Push carries the fields the rest
// of the accept-webhook algorithm depends on (spec §4.1 step 4).
var pushValidator = validator.New()

type acceptResponse struct {
	JobID string `json:"job_id"`
}

// handleWebhook implements the algorithm in spec §4.1 verbatim: read raw
// body first, verify signature in constant time, decode just enough to
// get (repo, ref, after, delivery-id), compute the idempotency key,
// attempt the idempotent create, append to the stream, return 202.
func (s *Server) handleWebhook(c *gin.Context) {
	name := c.Param("provider")
	p, ok := s.Providers.Lookup(name)
	if !ok {
		respondError(c, ErrNotFound(fmt.Sprintf("unknown provider %q", name)))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, ErrBadRequest("could not read request body"))
		return
	}

	secret := s.secretFor(name)
	if secret != "" && !p.VerifySignature(secret, body, c.Request.Header) {
		respondError(c, ErrUnauthorized("invalid signature"))
		return
	}

	if !p.IsPushEvent(c.Request.Header) {
		c.Status(http.StatusNoContent)
		return
	}

	push, err := p.ParsePush(body, c.Request.Header)
	if err != nil {
		respondError(c, ErrBadRequest("malformed webhook payload"))
		return
	}
	if err := pushValidator.Struct(push); err != nil {
		respondError(c, ErrBadRequest("malformed webhook payload"))
		return
	}

	idempotencyKey := push.DeliveryID
	if idempotencyKey == "" {
		idempotencyKey = hashKey(push.Repo, push.Ref, push.After)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Repo:      push.Repo,
		Branch:    push.Ref,
		Commit:    push.After,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	existingID, created, err := s.Store.CreateJob(c.Request.Context(), job, idempotencyKey)
	if err != nil {
		logging.Error("status store unavailable for webhook accept", err, zap.String("repo", push.Repo))
		respondError(c, ErrUnavailable("status store unavailable"))
		return
	}
	if !created {
		// Idempotent replay (spec §4.1 step 5 / §8 boundary case): no
		// stream append, same job id returned.
		c.JSON(http.StatusAccepted, acceptResponse{JobID: existingID})
		return
	}

	if _, err := s.Queue.Enqueue(c.Request.Context(), job); err != nil {
		// Dispatch split-brain (spec §4.1 step 6 / §7 class 5): the
		// record exists but the stream append failed.
		logging.Error("stream append failed after job record created", err, zap.String("job_id", job.ID))
		_ = s.Store.MarkDispatchError(c.Request.Context(), job.ID)
		respondError(c, ErrUnavailable("failed to enqueue job"))
		return
	}

	c.JSON(http.StatusAccepted, acceptResponse{JobID: job.ID})
}

func (s *Server) secretFor(provider string) string {
	switch provider {
	case "github":
		return s.Webhook.GitHubSecret
	case "gitea":
		return s.Webhook.GiteaSecret
	default:
		return ""
	}
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) handleCancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := s.Store.RequestCancel(c.Request.Context(), id); err != nil {
		if err == statusstore.ErrNotFound {
			respondError(c, ErrNotFound("job not found"))
			return
		}
		respondError(c, ErrInternal(err))
		return
	}
	c.Status(http.StatusAccepted)
}
