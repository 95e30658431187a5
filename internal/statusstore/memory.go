package statusstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

// Memory is an in-process fake Store used by the dispatcher/agent test
// suites in place of a real Redis instance (DESIGN.md: the interface is
// narrow enough that a hand-written fake is simpler than pulling in a
// miniredis-style dependency, and it's how the teacher's own services are
// tested — constructing structs directly).
type Memory struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	idempot map[string]string
	logs    map[string][]domain.LogEntry
	seq     int
}

func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string]*domain.Job),
		idempot: make(map[string]string),
		logs:    make(map[string][]domain.LogEntry),
	}
}

func (m *Memory) CreateJob(_ context.Context, job *domain.Job, idempotencyKey string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.idempot[idempotencyKey]; ok {
		return existing, false, nil
	}
	m.idempot[idempotencyKey] = job.ID
	cp := *job
	m.jobs[job.ID] = &cp
	return job.ID, true, nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Memory) ListJobs(_ context.Context, filter JobFilter) (ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Job
	for _, j := range m.jobs {
		if filter.Status != "" && string(j.Status) != filter.Status {
			continue
		}
		if filter.Repo != "" && j.Repo != filter.Repo {
			continue
		}
		if filter.Branch != "" && j.Branch != filter.Branch {
			continue
		}
		all = append(all, *j)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return ListResult{Jobs: all[offset:end], Total: len(all)}, nil
}

func (m *Memory) MarkDispatchError(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = domain.StatusFailed
	j.Reason = domain.ReasonDispatchError
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (m *Memory) TransitionToRunning(_ context.Context, id, agentID, resolvedCommit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != domain.StatusPending {
		return ErrConflict
	}
	now := time.Now().UTC()
	j.Status = domain.StatusRunning
	j.AgentID = agentID
	j.Commit = resolvedCommit
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

func (m *Memory) TransitionToTerminal(_ context.Context, id string, status domain.Status, exitCode *int, reason domain.Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != domain.StatusRunning && j.Status != domain.StatusPending {
		return ErrConflict
	}
	if j.Status == domain.StatusPending && status != domain.StatusCancelled {
		return ErrConflict
	}
	now := time.Now().UTC()
	j.Status = status
	j.ExitCode = exitCode
	j.Reason = reason
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (m *Memory) RequestCancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.CancelRequested = true
	return nil
}

func (m *Memory) AppendLog(_ context.Context, id string, entry domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	entry.ID = strconv.Itoa(m.seq)
	m.logs[id] = append(m.logs[id], entry)
	return nil
}

func (m *Memory) ReadLogs(_ context.Context, id, afterID string, count int64) ([]domain.LogEntry, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.logs[id]
	start := 0
	if afterID != "" {
		for i, e := range all {
			if e.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	if start >= len(all) {
		return nil, afterID, nil
	}
	end := len(all)
	if count > 0 && start+int(count) < end {
		end = start + int(count)
	}
	out := append([]domain.LogEntry{}, all[start:end]...)
	last := afterID
	if len(out) > 0 {
		last = out[len(out)-1].ID
	}
	return out, last, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
