// Package statusstore is the status-store client: the keyed job:{id}
// record plus per-job append-only log substream described in spec §6,
// and the idempotency-key index that makes webhook acceptance idempotent
// (spec §4.1 step 5).
package statusstore

import (
	"context"
	"errors"
	"time"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

// ErrNotFound is returned by GetJob for an unknown id.
var ErrNotFound = errors.New("statusstore: job not found")

// ErrConflict is returned by the CAS transition helpers when another
// writer already moved the job past the expected state (spec §4.2's
// "losing the race to another agent" case).
var ErrConflict = errors.New("statusstore: conflicting job transition")

// JobFilter narrows ListJobs (spec §6's GET /jobs query params).
type JobFilter struct {
	Status string
	Repo   string
	Branch string
	Limit  int
	Offset int
	Cursor string
}

// ListResult is one page of ListJobs.
type ListResult struct {
	Jobs       []domain.Job
	Total      int
	NextCursor string
}

// Store is the narrow interface the dispatcher and agent depend on. The
// Redis implementation binds it to job:{id} hashes + job:{id}:logs streams
// (spec §6); tests use a hand-written in-memory fake (DESIGN.md).
type Store interface {
	// CreateJob attempts to create job keyed by idempotencyKey. If a job
	// already exists for that key, it returns its id and created=false
	// (the "idempotent replay" path in spec §4.1 step 5).
	CreateJob(ctx context.Context, job *domain.Job, idempotencyKey string) (existingID string, created bool, err error)

	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) (ListResult, error)

	// MarkDispatchError records the dispatch-split-brain failure mode
	// (spec §4.1 step 6 / §7 class 5): record created but stream append
	// failed.
	MarkDispatchError(ctx context.Context, id string) error

	// TransitionToRunning is the compare-and-set that enforces singleton
	// pickup (spec §4.3.2): it only succeeds if the job is still pending.
	TransitionToRunning(ctx context.Context, id, agentID, resolvedCommit string) error

	// TransitionToTerminal is the compare-and-set that records a terminal
	// outcome; it only succeeds if the job is currently running (or, for
	// a pending->cancelled transition, still pending).
	TransitionToTerminal(ctx context.Context, id string, status domain.Status, exitCode *int, reason domain.Reason) error

	// RequestCancel sets the per-job cancel flag (spec §9 open question).
	RequestCancel(ctx context.Context, id string) error

	AppendLog(ctx context.Context, id string, entry domain.LogEntry) error
	// ReadLogs returns entries appended after afterID ("" means from the
	// beginning), plus the id to resume from on the next call.
	ReadLogs(ctx context.Context, id, afterID string, count int64) ([]domain.LogEntry, string, error)

	Ping(ctx context.Context) error
}

// RetentionWindow is the TTL applied to a job (and its log stream) the
// moment it reaches a terminal state (SPEC_FULL.md §3 expansion).
const RetentionWindow = 7 * 24 * time.Hour
