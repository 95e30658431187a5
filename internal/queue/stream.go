// Package queue is the stream substrate client: a durable, ordered,
// consumer-group-capable queue of domain.StreamEntry values (spec §2, §6).
// It generalizes the teacher's Redis-list EnqueueBuild/DequeueBuild pair
// into Redis Streams so the autoscaling contract's pending-entry and
// orphan-reclaim invariants (spec §4.3) have somewhere to live.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/raibid-labs/raibid-ci/internal/domain"
	"github.com/raibid-labs/raibid-ci/internal/logging"
)

// ErrNoEntries is returned by ReadGroup/Claim when nothing was available
// before the read deadline; callers should treat it like an empty slice.
var ErrNoEntries = errors.New("queue: no entries available")

// Entry is one delivered StreamEntry, tagged with the consumer-group
// bookkeeping needed to ack or claim it.
type Entry struct {
	ID  string
	Job domain.Job
}

// PendingSummary reports the autoscaler-facing demand signal (spec §4.3.1).
type PendingSummary struct {
	// Count is the number of entries delivered to the group but not yet
	// acknowledged (XPENDING's summary count).
	Count int64
	// OldestIdle is how long the single oldest pending entry has sat
	// unacknowledged — compared against the reclaim threshold.
	OldestIdle time.Duration
}

// Stream is the narrow interface the dispatcher and agent depend on; it
// is implemented by *Redis and, in tests, by a hand-written fake (see
// DESIGN.md's test-tooling note on why no in-memory-Redis library is
// pulled in).
type Stream interface {
	// Enqueue appends a StreamEntry carrying job and returns the
	// stream-assigned entry id.
	Enqueue(ctx context.Context, job *domain.Job) (entryID string, err error)
	// ReadGroup performs a blocking consumer-group read for consumer,
	// returning newly delivered entries or ErrNoEntries on timeout.
	ReadGroup(ctx context.Context, consumer string, count int64, block time.Duration) ([]Entry, error)
	// Ack acknowledges entryID, removing it from the pending list.
	Ack(ctx context.Context, entryID string) error
	// Claim reassigns entries idle for at least minIdle to consumer
	// (spec §4.3.3, orphan reclaim).
	Claim(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Entry, error)
	// Pending reports the autoscaler's demand signal.
	Pending(ctx context.Context) (PendingSummary, error)
	// Len reports the raw stream length (includes delivered+acked history
	// until trimmed); neither the dispatcher nor the agent calls it.
	Len(ctx context.Context) (int64, error)
	// Ping checks connectivity for the dispatcher's readiness probe.
	Ping(ctx context.Context) error
}

// Redis is the Stream implementation backed by Redis Streams + a single
// consumer group, matching the key layout in spec §6 ("Main queue stream
// raibid:jobs, consumer group raibid-agents").
type Redis struct {
	client *redis.Client
	stream string
	group  string
}

// NewRedis dials addr and ensures the consumer group exists, creating the
// stream if necessary (MKSTREAM), mirroring the teacher's
// NewRedisClient/Ping-on-connect pattern in internal/client/redis/base.go.
func NewRedis(ctx context.Context, url, stream, group string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	err = client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	// BUSYGROUP means the group already exists, which is fine on every
	// startup after the first.
	if err != nil && !isBusyGroup(err) {
		return nil, err
	}

	return &Redis{client: client, stream: stream, group: group}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Enqueue(ctx context.Context, job *domain.Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{"job": payload},
	}).Result()
	if err != nil {
		return "", err
	}
	logging.Debug("enqueued stream entry", zap.String("entry_id", id), zap.String("job_id", job.ID))
	return id, nil
}

func (r *Redis) ReadGroup(ctx context.Context, consumer string, count int64, block time.Duration) ([]Entry, error) {
	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: consumer,
		Streams:  []string{r.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoEntries
		}
		return nil, err
	}
	return toEntries(res)
}

func (r *Redis) Ack(ctx context.Context, entryID string) error {
	return r.client.XAck(ctx, r.stream, r.group, entryID).Err()
}

func (r *Redis) Claim(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group:  r.group,
		Start:  "-",
		End:    "+",
		Count:  count,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrNoEntries
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	msgs, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return toEntries([]redis.XStream{{Stream: r.stream, Messages: msgs}})
}

func (r *Redis) Pending(ctx context.Context) (PendingSummary, error) {
	summary, err := r.client.XPending(ctx, r.stream, r.group).Result()
	if err != nil {
		return PendingSummary{}, err
	}
	out := PendingSummary{Count: summary.Count}
	if summary.Count > 0 {
		ext, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: r.stream, Group: r.group, Start: "-", End: "+", Count: 1,
		}).Result()
		if err == nil && len(ext) > 0 {
			out.OldestIdle = ext[0].Idle
		}
	}
	return out, nil
}

func (r *Redis) Len(ctx context.Context) (int64, error) {
	return r.client.XLen(ctx, r.stream).Result()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func toEntries(streams []redis.XStream) ([]Entry, error) {
	var out []Entry
	for _, s := range streams {
		for _, msg := range s.Messages {
			raw, ok := msg.Values["job"]
			if !ok {
				continue
			}
			var job domain.Job
			str, _ := raw.(string)
			if err := json.Unmarshal([]byte(str), &job); err != nil {
				return nil, err
			}
			out = append(out, Entry{ID: msg.ID, Job: job})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEntries
	}
	return out, nil
}
