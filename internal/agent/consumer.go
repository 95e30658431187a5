package agent

import (
	"context"
	"time"

	"github.com/raibid-labs/raibid-ci/internal/queue"
)

// pollTimeout bounds each blocking ReadGroup call (state POLL); a zero
// return just means no work showed up in that window, not an error.
const pollTimeout = 5 * time.Second

// reclaimInterval is how often an idle agent also checks for orphaned
// entries from a dead consumer (spec §4.3.3), interleaved with its own
// POLL reads.
const reclaimInterval = 30 * time.Second

// next performs one POLL for consumerName: a ReadGroup bounded by
// pollTimeout and, at most once per reclaimInterval, a Claim of entries
// idle on a peer. It returns queue.ErrNoEntries when neither yields an
// entry.
func next(ctx context.Context, q queue.Stream, consumerName string, reclaimMinIdle time.Duration, lastReclaim *time.Time) (*queue.Entry, error) {
	entries, err := q.ReadGroup(ctx, consumerName, 1, pollTimeout)
	if err == nil && len(entries) > 0 {
		return &entries[0], nil
	}
	if err != nil && err != queue.ErrNoEntries {
		return nil, err
	}

	if time.Since(*lastReclaim) < reclaimInterval {
		return nil, queue.ErrNoEntries
	}
	*lastReclaim = time.Now()

	claimed, err := q.Claim(ctx, consumerName, reclaimMinIdle, 1)
	if err != nil && err != queue.ErrNoEntries {
		return nil, err
	}
	if len(claimed) > 0 {
		return &claimed[0], nil
	}
	return nil, queue.ErrNoEntries
}
