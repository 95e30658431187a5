// Package agent implements the Worker Agent (spec §4.2): it drains
// entries from the shared consumer group, executes each job's build in a
// sandbox container, streams logs back to the status store, publishes
// terminal status, and acknowledges. Grounded on the teacher's
// internal/app/base.go run loop and internal/services/build_service.go,
// generalized from "build one pushed commit, then deploy" to "run
// whatever stream entry comes next, forever, until told to drain."
package agent

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raibid-labs/raibid-ci/internal/domain"
	"github.com/raibid-labs/raibid-ci/internal/logging"
	"github.com/raibid-labs/raibid-ci/internal/queue"
	"github.com/raibid-labs/raibid-ci/internal/statusstore"
)

// state names the lifecycle positions in spec §4.2's state diagram.
type state string

const (
	stateInit     state = "init"
	stateRegister state = "register"
	statePoll     state = "poll"
	stateClaimed  state = "claimed"
	stateRunning  state = "running"
	stateFinalize state = "finalize"
	stateDrain    state = "drain"
	stateExit     state = "exit"
)

// Agent is one worker-agent process. ID becomes the stream consumer name
// (REGISTER, spec §4.2).
type Agent struct {
	ID     string
	cfg    Config
	queue  queue.Stream
	store  statusstore.Store
	runner Runner

	// cloner defaults to shellCloner{}; tests substitute a fake so they
	// never shell out to a real git binary.
	cloner cloner

	draining       atomic.Bool
	state          state
	mu             sync.Mutex
	inFlightCancel context.CancelFunc
}

// New constructs an agent with a freshly assigned, process-stable id
// (REGISTER). Callers needing a fixed id (e.g. restart with the same
// identity to resume a held entry) overwrite the ID field before Run, as
// cmd/agent does for its -id flag.
func New(cfg Config, q queue.Stream, store statusstore.Store, runner Runner) *Agent {
	return &Agent{
		ID:     "agent-" + hostname() + "-" + uuid.NewString()[:8],
		cfg:    cfg,
		queue:  q,
		store:  store,
		runner: runner,
		cloner: shellCloner{},
		state:  stateInit,
	}
}

// Drain requests the agent refuse new POLLs and exit once the in-flight
// job (if any) reaches a terminal state (spec §4.2's "Draining"). If a
// build is in flight, its grace window starts now; expiry kills the
// subprocess and the job finalizes as failed with reason "interrupted".
func (a *Agent) Drain() {
	a.draining.Store(true)

	a.mu.Lock()
	cancel := a.inFlightCancel
	a.mu.Unlock()
	if cancel == nil {
		return
	}

	grace := a.cfg.DrainGrace
	if grace <= 0 {
		grace = DefaultDrainGrace
	}
	time.AfterFunc(grace, cancel)
}

// Run is the agent's main loop: POLL -> CLAIMED -> RUNNING -> FINALIZE,
// repeating until ctx is cancelled or Drain is called and there is no
// in-flight job left to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.state = stateRegister
	logging.Info("agent registered", zap.String("agent_id", a.ID))

	lastReclaim := time.Time{}

	for {
		if a.draining.Load() {
			a.state = stateDrain
			logging.Info("agent draining, no further polls", zap.String("agent_id", a.ID))
			a.state = stateExit
			return nil
		}

		select {
		case <-ctx.Done():
			a.state = stateExit
			return ctx.Err()
		default:
		}

		a.state = statePoll
		entry, err := next(ctx, a.queue, a.ID, a.reclaimMinIdle(), &lastReclaim)
		if err == queue.ErrNoEntries {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				a.state = stateExit
				return ctx.Err()
			}
			logging.Error("poll failed", err, zap.String("agent_id", a.ID))
			continue
		}

		a.state = stateClaimed
		a.handle(ctx, entry)
	}
}

func (a *Agent) reclaimMinIdle() time.Duration {
	if a.cfg.ReclaimMinIdle > 0 {
		return a.cfg.ReclaimMinIdle
	}
	return 60 * time.Second
}

// handle runs one entry end to end: transition to running, execute the
// build, finalize, ack. The claim and the finalization are logged at info;
// a rejected running transition is logged at warn.
func (a *Agent) handle(ctx context.Context, entry *queue.Entry) {
	job := entry.Job
	logging.Info("job claimed", zap.String("agent_id", a.ID), zap.String("job_id", job.ID), zap.String("entry_id", entry.ID))

	// workCtx survives the outer shutdown signal: once a job is CLAIMED,
	// finishing it (or honoring its own drain grace window) takes
	// priority over the process-level context going away (spec §4.2's
	// "Draining": "complete the in-flight job to its natural terminal
	// state; write status and ack").
	workCtx := context.WithoutCancel(ctx)

	buildCtx, cancel := context.WithCancel(workCtx)
	a.setInFlight(cancel)
	defer func() {
		cancel()
		a.clearInFlight()
	}()

	onLog := func(e domain.LogEntry) {
		if err := a.store.AppendLog(workCtx, job.ID, e); err != nil {
			logging.Warn("log append failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	isCancelled := func() bool {
		current, err := a.store.GetJob(workCtx, job.ID)
		if err != nil {
			return false
		}
		return current.CancelRequested
	}

	exec := newExecutor(a.runner, a.buildImage(), a.cfg.BuildDeadline, onLog, isCancelled)
	exec.clone = a.cloner

	// Workspace creation and clone happen before the running transition
	// (spec §4.2's "Clone": "resolve to the current tip of branch at
	// clone time and persist the resolved SHA on the Job before
	// transitioning to RUNNING") so TransitionToRunning writes the real
	// commit on the success path. When preparation fails, the job's
	// commit as enqueued (possibly "HEAD") is written instead.
	workspace, resolvedCommit, cleanup, err := exec.prepareWorkspace(buildCtx, &job)
	if err != nil {
		outcome := exec.failFrom(err, domain.ReasonBuildFailed)
		if buildCtx.Err() == context.Canceled {
			outcome = buildOutcome{status: domain.StatusFailed, exitCode: reservedTimeoutExitCode, reason: domain.ReasonInterrupted}
		}
		if tErr := a.store.TransitionToRunning(workCtx, job.ID, a.ID, job.Commit); tErr != nil {
			logging.Warn("running transition rejected, ceding job", zap.String("job_id", job.ID), zap.Error(tErr))
			_ = a.queue.Ack(workCtx, entry.ID)
			return
		}
		a.state = stateFinalize
		a.finalize(workCtx, entry, &job, outcome)
		return
	}
	defer cleanup()

	if err := a.store.TransitionToRunning(workCtx, job.ID, a.ID, resolvedCommit); err != nil {
		// Singleton pickup lost the race (spec §4.3.2): another agent
		// already owns this job. Ack our delivery away and move on,
		// since duplicate delivery is expected under at-least-once
		// semantics.
		logging.Warn("running transition rejected, ceding job", zap.String("job_id", job.ID), zap.Error(err))
		_ = a.queue.Ack(workCtx, entry.ID)
		return
	}
	job.Commit = resolvedCommit

	a.state = stateRunning
	job.Status = domain.StatusRunning

	outcome := exec.run(buildCtx, &job, workspace)
	if buildCtx.Err() == context.Canceled && outcome.status != domain.StatusCancelled {
		// Drain grace window expired mid-build (spec §4.2's "Draining",
		// second paragraph): the executor's own cooperative cancel check
		// only covers the per-job CancelRequested flag, not this.
		outcome = buildOutcome{status: domain.StatusFailed, exitCode: reservedTimeoutExitCode, reason: domain.ReasonInterrupted}
	}

	a.state = stateFinalize
	a.finalize(workCtx, entry, &job, outcome)
}

func (a *Agent) setInFlight(cancel context.CancelFunc) {
	a.mu.Lock()
	a.inFlightCancel = cancel
	a.mu.Unlock()
}

func (a *Agent) clearInFlight() {
	a.mu.Lock()
	a.inFlightCancel = nil
	a.mu.Unlock()
}

func (a *Agent) buildImage() string {
	if a.cfg.BuildImage != "" {
		return a.cfg.BuildImage
	}
	return "golang:1.24-alpine"
}

// finalize writes the terminal status, then acks exactly once (spec
// §4.2's "Ack discipline"). A status-write failure blocks the ack and is
// retried with bounded backoff; a lost CAS race (statusstore.ErrConflict)
// aborts the ack entirely, since another consumer already finalized this
// job.
func (a *Agent) finalize(ctx context.Context, entry *queue.Entry, job *domain.Job, outcome buildOutcome) {
	var exitCode *int
	if outcome.status != domain.StatusCancelled {
		code := outcome.exitCode
		exitCode = &code
	}

	backoff := []time.Duration{0, 250 * time.Millisecond, time.Second, 3 * time.Second}
	var lastErr error
	for _, delay := range backoff {
		if delay > 0 {
			time.Sleep(delay)
		}
		lastErr = a.store.TransitionToTerminal(ctx, job.ID, outcome.status, exitCode, outcome.reason)
		if lastErr == nil {
			break
		}
		if lastErr == statusstore.ErrConflict {
			logging.Warn("terminal transition lost race, aborting ack", zap.String("job_id", job.ID))
			return
		}
		logging.Warn("terminal status write failed, retrying", zap.String("job_id", job.ID), zap.Error(lastErr))
	}
	if lastErr != nil {
		logging.Error("terminal status write exhausted retries, ack withheld", lastErr, zap.String("job_id", job.ID))
		return
	}

	if err := a.queue.Ack(ctx, entry.ID); err != nil {
		logging.Error("ack failed after terminal write", err, zap.String("job_id", job.ID), zap.String("entry_id", entry.ID))
		return
	}
	logging.Info("job finalized", zap.String("agent_id", a.ID), zap.String("job_id", job.ID), zap.String("status", string(outcome.status)))
}

// hostname is used by New as a readable fragment of the process's
// default consumer name (cmd/agent's -id flag replaces that name).
func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}
