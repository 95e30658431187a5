package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestJob_CanTransition(t *testing.T) {
	pending := &Job{Status: StatusPending}
	assert.True(t, pending.CanTransition(StatusRunning))
	assert.True(t, pending.CanTransition(StatusCancelled))
	assert.False(t, pending.CanTransition(StatusSuccess))

	running := &Job{Status: StatusRunning}
	assert.True(t, running.CanTransition(StatusSuccess))
	assert.True(t, running.CanTransition(StatusFailed))
	assert.True(t, running.CanTransition(StatusCancelled))
	assert.False(t, running.CanTransition(StatusRunning))

	for _, terminal := range []Status{StatusSuccess, StatusFailed, StatusCancelled} {
		j := &Job{Status: terminal}
		assert.False(t, j.CanTransition(StatusRunning))
		assert.False(t, j.CanTransition(StatusSuccess))
	}
}

func TestJob_Duration(t *testing.T) {
	j := &Job{}
	assert.Nil(t, j.Duration())

	start := time.Now()
	j.StartedAt = &start
	assert.Nil(t, j.Duration())

	finish := start.Add(90 * time.Second)
	j.FinishedAt = &finish
	d := j.Duration()
	if assert.NotNil(t, d) {
		assert.InDelta(t, 90.0, *d, 0.01)
	}
}
