package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

func TestExecutorRun_Success(t *testing.T) {
	runner := newFakeRunner(0, "compiling...", "ok")
	var logged []domain.LogEntry
	exec := newExecutor(runner, "golang:1.24-alpine", time.Second, func(e domain.LogEntry) {
		logged = append(logged, e)
	}, func() bool { return false })
	exec.clone = fakeCloner{resolved: "deadbeef", buildYAML: "build: go build ./...\n"}

	job := &domain.Job{ID: "job-1", Repo: "https://example.com/repo.git", Branch: "main", Commit: domain.HEADCommit}
	workspace, resolvedCommit, cleanup, err := exec.prepareWorkspace(context.Background(), job)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, "deadbeef", resolvedCommit)

	outcome := exec.run(context.Background(), job, workspace)

	assert.Equal(t, domain.StatusSuccess, outcome.status)
	assert.Equal(t, 0, outcome.exitCode)
	require.Len(t, logged, 2)
	assert.Equal(t, "compiling...", logged[0].Message)
}

func TestExecutorRun_NonZeroExit(t *testing.T) {
	runner := newFakeRunner(1, "boom")
	exec := newExecutor(runner, "golang:1.24-alpine", time.Second, func(domain.LogEntry) {}, func() bool { return false })
	exec.clone = fakeCloner{resolved: "abc123", buildYAML: "build: false\n"}

	job := &domain.Job{ID: "job-2", Repo: "https://example.com/repo.git", Branch: "main"}
	workspace, _, cleanup, err := exec.prepareWorkspace(context.Background(), job)
	require.NoError(t, err)
	defer cleanup()

	outcome := exec.run(context.Background(), job, workspace)

	assert.Equal(t, domain.StatusFailed, outcome.status)
	assert.Equal(t, 1, outcome.exitCode)
	assert.Equal(t, domain.ReasonBuildFailed, outcome.reason)
}

func TestExecutorRun_CloneFailure(t *testing.T) {
	runner := newFakeRunner(0)
	exec := newExecutor(runner, "golang:1.24-alpine", time.Second, func(domain.LogEntry) {}, func() bool { return false })
	exec.clone = fakeCloner{err: assertError("no such repo")}

	job := &domain.Job{ID: "job-3", Repo: "https://example.com/missing.git", Branch: "main"}
	_, _, cleanup, err := exec.prepareWorkspace(context.Background(), job)
	cleanup()
	require.Error(t, err)

	outcome := exec.failFrom(err, domain.ReasonBuildFailed)
	assert.Equal(t, domain.StatusFailed, outcome.status)
	assert.Equal(t, domain.ReasonCloneFailed, outcome.reason)
}

func TestExecutorRun_MissingBuildFile(t *testing.T) {
	runner := newFakeRunner(0)
	exec := newExecutor(runner, "golang:1.24-alpine", time.Second, func(domain.LogEntry) {}, func() bool { return false })
	exec.clone = fakeCloner{resolved: "abc123"}

	job := &domain.Job{ID: "job-4", Repo: "https://example.com/repo.git", Branch: "main"}
	workspace, _, cleanup, err := exec.prepareWorkspace(context.Background(), job)
	require.NoError(t, err)
	defer cleanup()

	outcome := exec.run(context.Background(), job, workspace)

	assert.Equal(t, domain.StatusFailed, outcome.status)
	assert.Equal(t, domain.ReasonNoBuildFile, outcome.reason)
}

func TestExecutorRun_CooperativeCancel(t *testing.T) {
	runner := newFakeRunner(0, "still going")
	exec := newExecutor(runner, "golang:1.24-alpine", time.Minute, func(domain.LogEntry) {}, func() bool { return true })
	exec.clone = fakeCloner{resolved: "abc123", buildYAML: "build: sleep 100\n"}

	job := &domain.Job{ID: "job-5", Repo: "https://example.com/repo.git", Branch: "main"}
	workspace, _, cleanup, err := exec.prepareWorkspace(context.Background(), job)
	require.NoError(t, err)
	defer cleanup()

	outcome := exec.run(context.Background(), job, workspace)

	assert.Equal(t, domain.StatusCancelled, outcome.status)
	assert.Equal(t, domain.ReasonInterrupted, outcome.reason)
	assert.Contains(t, runner.killed, "raibid-build-job-5")
}

type assertError string

func (e assertError) Error() string { return string(e) }
