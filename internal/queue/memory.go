package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

type memoryEntry struct {
	entry   Entry
	owner   string
	claimed time.Time
	acked   bool
}

// Memory is an in-process fake Stream, used the same way
// statusstore.Memory is: narrow interface, hand-written fake, no real
// Redis needed to exercise the dispatcher/agent test suites.
type Memory struct {
	mu      sync.Mutex
	entries []*memoryEntry
	seq     int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(_ context.Context, job *domain.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := strconv.Itoa(m.seq)
	m.entries = append(m.entries, &memoryEntry{entry: Entry{ID: id, Job: *job}})
	return id, nil
}

func (m *Memory) ReadGroup(_ context.Context, consumer string, count int64, _ time.Duration) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.owner == "" && !e.acked {
			e.owner = consumer
			e.claimed = time.Now()
			out = append(out, e.entry)
			if int64(len(out)) >= count && count > 0 {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEntries
	}
	return out, nil
}

func (m *Memory) Ack(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.entry.ID == entryID {
			e.acked = true
			return nil
		}
	}
	return nil
}

func (m *Memory) Claim(_ context.Context, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if !e.acked && e.owner != "" && time.Since(e.claimed) >= minIdle {
			e.owner = consumer
			e.claimed = time.Now()
			out = append(out, e.entry)
			if int64(len(out)) >= count && count > 0 {
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEntries
	}
	return out, nil
}

func (m *Memory) Pending(_ context.Context) (PendingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	var oldest time.Duration
	for _, e := range m.entries {
		if !e.acked && e.owner != "" {
			count++
			if idle := time.Since(e.claimed); idle > oldest {
				oldest = idle
			}
		}
	}
	return PendingSummary{Count: count, OldestIdle: oldest}, nil
}

func (m *Memory) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

func (m *Memory) Ping(context.Context) error { return nil }
