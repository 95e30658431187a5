package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

func TestMemory_EnqueueAndReadGroup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	job := &domain.Job{ID: "job-1", Repo: "r"}

	id, err := m.Enqueue(ctx, job)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := m.ReadGroup(ctx, "consumer-a", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].Job.ID)

	// A second consumer sees nothing new — exclusive delivery (spec
	// §4.3.2's singleton pickup, satisfied here by consumer-group
	// exclusivity).
	_, err = m.ReadGroup(ctx, "consumer-b", 10, time.Second)
	assert.Equal(t, ErrNoEntries, err)
}

func TestMemory_AckRemovesFromPending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	job := &domain.Job{ID: "job-2"}
	m.Enqueue(ctx, job)
	entries, err := m.ReadGroup(ctx, "consumer-a", 1, time.Second)
	require.NoError(t, err)

	summary, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Count)

	require.NoError(t, m.Ack(ctx, entries[0].ID))

	summary, err = m.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Count)
}

func TestMemory_ClaimReassignsIdleEntries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	job := &domain.Job{ID: "job-3"}
	m.Enqueue(ctx, job)
	_, err := m.ReadGroup(ctx, "dead-consumer", 1, time.Second)
	require.NoError(t, err)

	// Not idle long enough yet.
	claimed, err := m.Claim(ctx, "rescuer", time.Hour, 1)
	assert.Equal(t, ErrNoEntries, err)
	assert.Nil(t, claimed)

	claimed, err = m.Claim(ctx, "rescuer", 0, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "job-3", claimed[0].Job.ID)
}

func TestMemory_Len(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Enqueue(ctx, &domain.Job{ID: "a"})
	m.Enqueue(ctx, &domain.Job{ID: "b"})

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
