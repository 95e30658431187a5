// Command dispatcher runs the Job Dispatch Server (spec §4.1): it accepts
// webhooks, enqueues onto the shared stream, and serves job status, log
// tailing and health. Grounded on the teacher's cmd/main.go wiring
// (app.NewApp -> Server.Start -> wait for signal), split into its own
// binary since the dispatcher and agent are now two separate processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raibid-labs/raibid-ci/internal/config"
	"github.com/raibid-labs/raibid-ci/internal/dispatcher/httpapi"
	"github.com/raibid-labs/raibid-ci/internal/dispatcher/provider"
	"github.com/raibid-labs/raibid-ci/internal/logging"
	"github.com/raibid-labs/raibid-ci/internal/queue"
	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	port := flag.Int("port", 0, "override server.port")
	logLevel := flag.String("log-level", "", "override log.level")
	flag.Parse()

	opts := config.Options{FilePath: *configPath}
	if *port != 0 {
		opts.ServerPort = port
	}
	if *logLevel != "" {
		opts.LogLevel = logLevel
	}

	cfg, err := config.Load(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.Log.Level, logging.Format(cfg.Log.Format)); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.ConsumerGroup)
	if err != nil {
		logging.Error("failed to connect to queue", err)
		os.Exit(1)
	}
	defer q.Close()

	store, err := statusstore.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		logging.Error("failed to connect to status store", err)
		os.Exit(1)
	}
	defer store.Close()

	server := &httpapi.Server{
		Store:            store,
		Queue:            q,
		Providers:        provider.NewRegistry(),
		Webhook:          cfg.Webhook,
		ReclaimThreshold: time.Duration(cfg.Agents.IdleTimeout) * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	go func() {
		logging.Info("dispatcher listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("http server failed", err)
		}
	}()

	<-ctx.Done()
	logging.Info("dispatcher shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error("graceful shutdown failed", err)
	}
}
