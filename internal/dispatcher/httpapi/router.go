// Package httpapi is the dispatcher's HTTP surface (spec §4.1, §6):
// webhook ingress, job listing/lookup, SSE log fan-out, and health.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/raibid-labs/raibid-ci/internal/config"
	"github.com/raibid-labs/raibid-ci/internal/dispatcher/provider"
	"github.com/raibid-labs/raibid-ci/internal/logging"
	"github.com/raibid-labs/raibid-ci/internal/queue"
	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

const requestIDKey = "request_id"

// Server wires the status store, the queue and the provider registry into
// a gin.Engine (spec §4.1's "Public contract" table).
type Server struct {
	Store     statusstore.Store
	Queue     queue.Stream
	Providers provider.Registry
	Webhook   config.WebhookConfig

	// ReclaimThreshold is used only to report held_count on /health (spec
	// §4.3.1 / SPEC_FULL.md's autoscaler observability expansion).
	ReclaimThreshold time.Duration
}

// Router builds the gin.Engine (teacher's routes.InitRouter, generalized
// to the full spec §6 surface).
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), accessLogMiddleware())

	r.POST("/webhooks/:provider", s.handleWebhook)

	r.GET("/jobs", s.handleListJobs)
	r.GET("/jobs/:id", s.handleGetJob)
	r.GET("/jobs/:id/logs", s.handleStreamLogs)
	r.POST("/jobs/:id/cancel", s.handleCancelJob)

	r.GET("/health", s.handleHealth)
	r.GET("/health/ready", s.handleHealthReady)
	r.GET("/health/live", s.handleHealthLive)

	return r
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		buf := make([]byte, 8)
		_, _ = rand.Read(buf)
		c.Set(requestIDKey, hex.EncodeToString(buf))
		c.Next()
	}
}

func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rid, _ := c.Get(requestIDKey)
		logging.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Any("request_id", rid),
		)
	}
}

// dependencyStatus is one entry of the /health report (spec §4.1: "per-
// dependency health {status, message}").
type dependencyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func checkDependency(ctx context.Context, ping func(context.Context) error) dependencyStatus {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := ping(cctx); err != nil {
		return dependencyStatus{Status: "unhealthy", Message: err.Error()}
	}
	return dependencyStatus{Status: "healthy"}
}
