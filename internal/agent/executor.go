package agent

import (
	"bufio"
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raibid-labs/raibid-ci/internal/domain"
	"github.com/raibid-labs/raibid-ci/internal/logging"
	"go.uber.org/zap"
)

// reservedTimeoutExitCode is the sentinel exit code a timeout or
// out-of-resources kill maps to (spec §4.2's "Exit" rule).
const reservedTimeoutExitCode = 124

// buildOutcome is what executor.run reports back to the state machine.
type buildOutcome struct {
	status   domain.Status
	exitCode int
	reason   domain.Reason
}

// executor runs one job's build inside a sandbox container: workspace
// create/destroy, clone, declared-procedure execution, line-framed log
// capture, deadline enforcement and cancellation polling. Grounded on the
// teacher's internal/services/build_service.go BuildApplication method,
// generalized from "build then deploy" down to "build only" and from a
// fixed Dockerfile-driven image to the job's configured build image.
type executor struct {
	runner      Runner
	clone       cloner
	buildImage  string
	deadline    time.Duration
	onLog       func(domain.LogEntry)
	isCancelled func() bool
}

func newExecutor(runner Runner, buildImage string, deadline time.Duration, onLog func(domain.LogEntry), isCancelled func() bool) *executor {
	if deadline <= 0 {
		deadline = DefaultBuildDeadline
	}
	return &executor{
		runner:      runner,
		clone:       shellCloner{},
		buildImage:  buildImage,
		deadline:    deadline,
		onLog:       onLog,
		isCancelled: isCancelled,
	}
}

// prepareWorkspace creates the ephemeral workspace and clones job's commit
// into it, resolving domain.HEADCommit to the branch tip (spec §4.2's
// "Clone" rule). The resolved SHA is returned so the caller can persist it
// on the Job before transitioning to RUNNING, rather than after — cloning
// happens first specifically so the running transition always carries the
// real commit, never the "HEAD" sentinel. The returned cleanup always
// removes the workspace and is safe to call even when err != nil.
func (e *executor) prepareWorkspace(ctx context.Context, job *domain.Job) (workspace, resolvedCommit string, cleanup func(), err error) {
	workspace, mkErr := os.MkdirTemp("", "raibid-job-*")
	if mkErr != nil {
		return "", "", func() {}, &buildFailure{reason: domain.ReasonBuildFailed, err: mkErr}
	}
	cleanup = func() { os.RemoveAll(workspace) }

	resolvedCommit, cloneErr := e.clone.Clone(ctx, job.Repo, job.Branch, job.Commit, workspace)
	if cloneErr != nil {
		cleanup()
		if _, ok := cloneErr.(*buildFailure); !ok {
			cloneErr = &buildFailure{reason: domain.ReasonCloneFailed, err: cloneErr}
		}
		return "", "", func() {}, cloneErr
	}
	return workspace, resolvedCommit, cleanup, nil
}

// run executes job's build in an already-prepared workspace (see
// prepareWorkspace). The returned buildOutcome is always populated, even
// on error paths that never reach a container (missing build file): those
// map to a failed outcome with the matching Reason.
func (e *executor) run(ctx context.Context, job *domain.Job, workspace string) buildOutcome {
	proc, err := loadBuildProcedure(workspace)
	if err != nil {
		return e.failFrom(err, domain.ReasonNoBuildFile)
	}

	return e.runContainer(ctx, job, workspace, proc.Build)
}

func (e *executor) runContainer(ctx context.Context, job *domain.Job, workspace, command string) buildOutcome {
	buildCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	containerName := "raibid-build-" + job.ID
	if e.runner.Exists(buildCtx, containerName) {
		// A prior attempt at this job (orphan reclaim, spec §4.3.3: "the
		// reclaimer re-runs the job from scratch") left its container
		// behind; clear it before creating a fresh one under the same name.
		_ = e.runner.Remove(buildCtx, containerName)
	}

	id, err := e.runner.Create(buildCtx, ContainerSpec{
		Image:   e.buildImage,
		Name:    containerName,
		WorkDir: "/workspace",
		Cmd:     []string{"/bin/sh", "-c", command},
		Binds:   []string{bindWorkspace(workspace, "/workspace")},
	})
	if err != nil {
		return e.fail(domain.ReasonBuildFailed, err)
	}
	defer e.runner.Remove(context.Background(), id)

	if err := e.runner.Start(buildCtx, id); err != nil {
		return e.fail(domain.ReasonBuildFailed, err)
	}

	group, gctx := errgroup.WithContext(buildCtx)

	group.Go(func() error { return e.pumpLogs(gctx, id) })

	// waitDone stops the cancel poller once the build process has exited.
	waitDone := make(chan struct{})

	var cancelled bool
	group.Go(func() error {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			if e.isCancelled != nil && e.isCancelled() {
				cancelled = true
				_ = e.runner.Kill(context.Background(), id)
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case <-waitDone:
				return nil
			case <-ticker.C:
			}
		}
	})

	var exitCode int64
	group.Go(func() error {
		defer close(waitDone)
		code, err := e.runner.Wait(gctx, id)
		exitCode = code
		return err
	})

	waitErr := group.Wait()

	if cancelled {
		return buildOutcome{status: domain.StatusCancelled, reason: domain.ReasonInterrupted}
	}
	if buildCtx.Err() == context.DeadlineExceeded {
		_ = e.runner.Kill(context.Background(), id)
		return buildOutcome{status: domain.StatusFailed, exitCode: reservedTimeoutExitCode, reason: domain.ReasonTimeout}
	}
	if waitErr != nil {
		return e.failFrom(waitErr, domain.ReasonBuildFailed)
	}

	if exitCode == 0 {
		return buildOutcome{status: domain.StatusSuccess, exitCode: 0}
	}
	return buildOutcome{status: domain.StatusFailed, exitCode: int(exitCode), reason: domain.ReasonBuildFailed}
}

// pumpLogs reads the container's combined stdout/stderr and line-frames
// it into LogEntries, logging each at debug locally too (SPEC_FULL.md's
// logging expansion: "a developer tailing the agent's own stdout sees the
// build without needing to hit the dispatcher").
func (e *executor) pumpLogs(ctx context.Context, containerID string) error {
	reader, err := e.runner.Logs(ctx, containerID, true)
	if err != nil {
		return &buildFailure{reason: domain.ReasonLogPipe, err: err}
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		entry := domain.LogEntry{Timestamp: timeNow(), Level: domain.LogInfo, Message: line}
		logging.Debug("build output", zap.String("container_id", containerID), zap.String("line", line))
		if e.onLog != nil {
			e.onLog(entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return &buildFailure{reason: domain.ReasonLogPipe, err: err}
	}
	return nil
}

func (e *executor) fail(reason domain.Reason, err error) buildOutcome {
	logging.Error("build step failed", err, zap.String("reason", string(reason)))
	return buildOutcome{status: domain.StatusFailed, exitCode: -1, reason: reason}
}

// failFrom preserves the reason already attached to a *buildFailure (from
// clone, pipeline loading or the log pump) instead of overwriting it with
// fallback.
func (e *executor) failFrom(err error, fallback domain.Reason) buildOutcome {
	if bf, ok := err.(*buildFailure); ok {
		return buildOutcome{status: domain.StatusFailed, exitCode: -1, reason: bf.reason}
	}
	return e.fail(fallback, err)
}

func timeNow() time.Time { return time.Now().UTC() }
