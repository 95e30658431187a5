package statusstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

// Redis is the Store implementation backed by Redis hashes + streams,
// generalizing the teacher's internal/client/redis/base.go connection
// pattern (NewClient + Ping) to the richer status-store layout spec §6
// names.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func jobKey(id string) string       { return "job:" + id }
func logsKey(id string) string      { return "job:" + id + ":logs" }
func idempotentKey(k string) string { return "idempotency:" + k }

// createJobScript atomically claims the idempotency key and, only if it
// was not already claimed, writes the initial job hash. This keeps
// "create the index entry" and "create the record" from racing across
// dispatcher replicas (spec §5's "no component holds a distributed lock"
// — the atomicity instead comes from one Lua script run server-side).
var createJobScript = redis.NewScript(`
local idKey = KEYS[1]
local jobKey = KEYS[2]
local newID = ARGV[1]
local ok = redis.call("SETNX", idKey, newID)
if ok == 0 then
  return redis.call("GET", idKey)
end
for i = 2, #ARGV, 2 do
  redis.call("HSET", jobKey, ARGV[i], ARGV[i+1])
end
return newID
`)

func (r *Redis) CreateJob(ctx context.Context, job *domain.Job, idempotencyKey string) (string, bool, error) {
	fields := toHash(job)
	args := make([]interface{}, 0, len(fields)*2+1)
	args = append(args, job.ID)
	for k, v := range fields {
		args = append(args, k, v)
	}

	res, err := createJobScript.Run(ctx, r.client, []string{idempotentKey(idempotencyKey), jobKey(job.ID)}, args...).Result()
	if err != nil {
		return "", false, err
	}
	id, _ := res.(string)
	if id == job.ID {
		return job.ID, true, nil
	}
	return id, false, nil
}

func (r *Redis) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	m, err := r.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return fromHash(m)
}

func (r *Redis) ListJobs(ctx context.Context, filter JobFilter) (ListResult, error) {
	var cursor uint64
	var jobs []domain.Job

	for {
		keys, next, err := r.client.Scan(ctx, cursor, "job:*", 200).Result()
		if err != nil {
			return ListResult{}, err
		}
		for _, k := range keys {
			if hasSuffix(k, ":logs") {
				continue
			}
			m, err := r.client.HGetAll(ctx, k).Result()
			if err != nil || len(m) == 0 {
				continue
			}
			job, err := fromHash(m)
			if err != nil {
				continue
			}
			if matches(job, filter) {
				jobs = append(jobs, *job)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })

	total := len(jobs)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if filter.Cursor != "" {
		if n, err := strconv.Atoi(filter.Cursor); err == nil {
			offset = n
		}
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(jobs) {
		offset = len(jobs)
	}
	end := offset + limit
	if end > len(jobs) {
		end = len(jobs)
	}

	page := jobs[offset:end]
	nextCursor := ""
	if end < len(jobs) {
		nextCursor = strconv.Itoa(end)
	}

	return ListResult{Jobs: page, Total: total, NextCursor: nextCursor}, nil
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

func matches(job *domain.Job, f JobFilter) bool {
	if f.Status != "" && string(job.Status) != f.Status {
		return false
	}
	if f.Repo != "" && job.Repo != f.Repo {
		return false
	}
	if f.Branch != "" && job.Branch != f.Branch {
		return false
	}
	return true
}

func (r *Redis) MarkDispatchError(ctx context.Context, id string) error {
	now := time.Now().UTC()
	if err := r.client.HSet(ctx, jobKey(id), map[string]interface{}{
		"status":      string(domain.StatusFailed),
		"reason":      string(domain.ReasonDispatchError),
		"finished_at": now.Format(time.RFC3339Nano),
		"updated_at":  now.Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, jobKey(id), RetentionWindow).Err()
}

// transitionToRunningScript only applies the update if status is still
// "pending" — the CAS enforcing singleton pickup (spec §4.3.2).
var transitionToRunningScript = redis.NewScript(`
local jobKey = KEYS[1]
local status = redis.call("HGET", jobKey, "status")
if status ~= "pending" then
  return 0
end
redis.call("HSET", jobKey, "status", ARGV[1], "agent_id", ARGV[2], "commit", ARGV[3], "started_at", ARGV[4], "updated_at", ARGV[4])
return 1
`)

func (r *Redis) TransitionToRunning(ctx context.Context, id, agentID, resolvedCommit string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := transitionToRunningScript.Run(ctx, r.client, []string{jobKey(id)},
		string(domain.StatusRunning), agentID, resolvedCommit, now).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrConflict
	}
	return nil
}

// transitionToTerminalScript only applies if the job is currently running
// (or, for a direct pending->cancelled move, still pending) — spec §4.2's
// "losing the race to another agent... detected by a compare-and-set".
var transitionToTerminalScript = redis.NewScript(`
local jobKey = KEYS[1]
local status = redis.call("HGET", jobKey, "status")
if status ~= "running" and status ~= "pending" then
  return 0
end
if status == "pending" and ARGV[1] ~= "cancelled" then
  return 0
end
redis.call("HSET", jobKey, "status", ARGV[1], "reason", ARGV[2], "exit_code", ARGV[3], "finished_at", ARGV[4], "updated_at", ARGV[4])
redis.call("EXPIRE", jobKey, ARGV[5])
return 1
`)

func (r *Redis) TransitionToTerminal(ctx context.Context, id string, status domain.Status, exitCode *int, reason domain.Reason) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	exitCodeStr := ""
	if exitCode != nil {
		exitCodeStr = strconv.Itoa(*exitCode)
	}
	res, err := transitionToTerminalScript.Run(ctx, r.client, []string{jobKey(id)},
		string(status), string(reason), exitCodeStr, now, strconv.Itoa(int(RetentionWindow.Seconds()))).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrConflict
	}
	r.client.Expire(ctx, logsKey(id), RetentionWindow)
	return nil
}

func (r *Redis) RequestCancel(ctx context.Context, id string) error {
	n, err := r.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return r.client.HSet(ctx, jobKey(id), "cancel_requested", "true").Err()
}

func (r *Redis) AppendLog(ctx context.Context, id string, entry domain.LogEntry) error {
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: logsKey(id),
		Values: map[string]interface{}{
			"timestamp": entry.Timestamp.Format(time.RFC3339Nano),
			"level":     string(entry.Level),
			"message":   entry.Message,
		},
	}).Err()
}

func (r *Redis) ReadLogs(ctx context.Context, id, afterID string, count int64) ([]domain.LogEntry, string, error) {
	start := "-"
	if afterID != "" {
		start = "(" + afterID
	}
	msgs, err := r.client.XRangeN(ctx, logsKey(id), start, "+", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, afterID, nil
		}
		return nil, afterID, err
	}
	lastID := afterID
	entries := make([]domain.LogEntry, 0, len(msgs))
	for _, m := range msgs {
		ts, _ := time.Parse(time.RFC3339Nano, fmt.Sprint(m.Values["timestamp"]))
		entries = append(entries, domain.LogEntry{
			ID:        m.ID,
			Timestamp: ts,
			Level:     domain.LogLevel(fmt.Sprint(m.Values["level"])),
			Message:   fmt.Sprint(m.Values["message"]),
		})
		lastID = m.ID
	}
	return entries, lastID, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func toHash(j *domain.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":               j.ID,
		"repo":             j.Repo,
		"branch":           j.Branch,
		"commit":           j.Commit,
		"status":           string(j.Status),
		"agent_id":         j.AgentID,
		"reason":           string(j.Reason),
		"cancel_requested": strconv.FormatBool(j.CancelRequested),
		"created_at":       j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.ExitCode != nil {
		m["exit_code"] = strconv.Itoa(*j.ExitCode)
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		m["finished_at"] = j.FinishedAt.Format(time.RFC3339Nano)
	}
	return m
}

func fromHash(m map[string]string) (*domain.Job, error) {
	j := &domain.Job{
		ID:     m["id"],
		Repo:   m["repo"],
		Branch: m["branch"],
		Commit: m["commit"],
		Status: domain.Status(m["status"]),
		AgentID: m["agent_id"],
		Reason:  domain.Reason(m["reason"]),
	}
	j.CancelRequested, _ = strconv.ParseBool(m["cancel_requested"])
	if v, ok := m["exit_code"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			j.ExitCode = &n
		}
	}
	if v, ok := m["created_at"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			j.CreatedAt = t
		}
	}
	if v, ok := m["updated_at"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			j.UpdatedAt = t
		}
	}
	if v, ok := m["started_at"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			j.StartedAt = &t
		}
	}
	if v, ok := m["finished_at"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			j.FinishedAt = &t
		}
	}
	return j, nil
}
