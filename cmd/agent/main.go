// Command agent runs one Worker Agent process (spec §4.2): it registers
// as a stream consumer, drains job entries, executes builds in a Docker
// sandbox, and publishes terminal status until told to drain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raibid-labs/raibid-ci/internal/agent"
	"github.com/raibid-labs/raibid-ci/internal/config"
	"github.com/raibid-labs/raibid-ci/internal/logging"
	"github.com/raibid-labs/raibid-ci/internal/queue"
	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	logLevel := flag.String("log-level", "", "override log.level")
	agentID := flag.String("id", "", "stable agent id (stream consumer name); defaults to hostname-derived id")
	flag.Parse()

	opts := config.Options{FilePath: *configPath}
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

	runner, err := agent.NewDockerRunner()
	if err != nil {
		logging.Error("failed to connect to docker", err)
		os.Exit(1)
	}
	defer runner.Close()

	a := agent.New(agent.Config{
		BuildImage:     cfg.Agents.BuildImage,
		BuildDeadline:  time.Duration(cfg.Agents.BuildDeadline) * time.Second,
		ReclaimMinIdle: time.Duration(cfg.Agents.IdleTimeout) * time.Second,
	}, q, store, runner)

	if *agentID != "" {
		a.ID = *agentID
	}

	logging.Info("agent starting", zap.String("agent_id", a.ID))

	drained := make(chan struct{})
	go func() {
		<-ctx.Done()
		logging.Info("drain signal received", zap.String("agent_id", a.ID))
		a.Drain()
		close(drained)
	}()

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logging.Error("agent run loop exited with error", err, zap.String("agent_id", a.ID))
		os.Exit(1)
	}
	<-drained
	logging.Info("agent exited", zap.String("agent_id", a.ID))
}
