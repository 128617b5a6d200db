// Package broker is the task broker (C2): multi-priority FIFO task queues,
// per-task durable state, and per-user pub/sub progress streams, all
// backed by Redis so multiple orchestrator worker processes can share one
// queue.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Broker is the C2 contract. A single instance may be shared by many
// goroutines; the underlying Redis client handles its own connection
// pooling.
type Broker struct {
	rdb *redis.Client
}

// New connects to the broker's Redis instance at redisURL
// ("redis://host:port/db").
func New(redisURL string) (*Broker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Broker{rdb: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an already-constructed client, used by tests against
// miniredis.
func NewWithClient(rdb *redis.Client) *Broker { return &Broker{rdb: rdb} }

func (b *Broker) Close() error { return b.rdb.Close() }

func taskKey(id string) string    { return "task:" + id }
func queueKey(name string, p types.TaskPriority) string {
	return fmt.Sprintf("queue:%s:%s", name, p)
}
func tasksChannel(userID string) string  { return "tasks:" + userID }

// Enqueue stores the task record and pushes its id onto
// queue:{name}:{priority}. Returns the generated task id.
func (b *Broker) Enqueue(ctx context.Context, queueName string, taskType types.TaskType, payload any, userID string, priority types.TaskPriority) (string, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return "", apierr.Fatal("marshal task payload", err)
	}

	now := time.Now().UTC()
	task := types.Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Status:    types.TaskPending,
		Payload:   rawPayload,
		UserID:    userID,
		Priority:  priority,
		Progress:  types.TaskProgress{StepName: "Queued"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := b.saveTask(ctx, &task); err != nil {
		return "", err
	}
	if err := b.rdb.LPush(ctx, queueKey(queueName, priority), task.ID).Err(); err != nil {
		return "", apierr.Transient("enqueue task", err)
	}
	return task.ID, nil
}

// Claim blocks up to blockTimeout awaiting any of queueNames. High
// priority queues are checked before normal priority ones, draining
// strictly ahead of them among the listed set.
func (b *Broker) Claim(ctx context.Context, queueNames []string, blockTimeout time.Duration) (queue, taskID string, ok bool, err error) {
	keys := make([]string, 0, len(queueNames)*2)
	for _, q := range queueNames {
		keys = append(keys, queueKey(q, types.PriorityHigh))
	}
	for _, q := range queueNames {
		keys = append(keys, queueKey(q, types.PriorityNormal))
	}

	res, rErr := b.rdb.BRPop(ctx, blockTimeout, keys...).Result()
	if rErr == redis.Nil {
		return "", "", false, nil
	}
	if rErr != nil {
		return "", "", false, apierr.Transient("claim task", rErr)
	}
	// res = [key, value]; recover the logical queue name and priority from the key.
	key, taskID := res[0], res[1]
	for _, q := range queueNames {
		if key == queueKey(q, types.PriorityHigh) || key == queueKey(q, types.PriorityNormal) {
			queue = q
			break
		}
	}
	if err := b.markInProgress(ctx, taskID); err != nil {
		return queue, taskID, true, err
	}
	return queue, taskID, true, nil
}

func (b *Broker) markInProgress(ctx context.Context, taskID string) error {
	t, err := b.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status == types.TaskPending {
		t.Status = types.TaskInProgress
		return b.saveTask(ctx, t)
	}
	return nil
}

// Get returns the task record by id.
func (b *Broker) Get(ctx context.Context, taskID string) (*types.Task, error) {
	data, err := b.rdb.HGet(ctx, taskKey(taskID), "data").Result()
	if err == redis.Nil {
		return nil, apierr.Validationf("task not found: %s", taskID)
	}
	if err != nil {
		return nil, apierr.Transient("get task", err)
	}
	var t types.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, apierr.Fatal("unmarshal task", err)
	}
	return &t, nil
}

func (b *Broker) saveTask(ctx context.Context, t *types.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return apierr.Fatal("marshal task", err)
	}
	if err := b.rdb.HSet(ctx, taskKey(t.ID), "data", string(data)).Err(); err != nil {
		return apierr.Transient("save task", err)
	}
	return nil
}

// UpdateProgress updates the task record and publishes task.progress on
// tasks:{user_id}. Percentage is derived from step/totalSteps and must be
// monotonically non-decreasing across a task's lifetime; a
// regression is clamped rather than published, since retried steps must
// never make reported progress go backwards.
func (b *Broker) UpdateProgress(ctx context.Context, taskID string, step, totalSteps int, stepName, message string) error {
	t, err := b.Get(ctx, taskID)
	if err != nil {
		return err
	}

	pct := 0
	if totalSteps > 0 {
		pct = step * 100 / totalSteps
	}
	if pct < t.Progress.Percentage {
		pct = t.Progress.Percentage
	}

	t.Status = types.TaskInProgress
	t.Progress = types.TaskProgress{
		CurrentStep: step,
		TotalSteps:  totalSteps,
		StepName:    stepName,
		Percentage:  pct,
	}
	t.UpdatedAt = time.Now().UTC()

	if err := b.saveTask(ctx, t); err != nil {
		return err
	}
	return b.Publish(ctx, tasksChannel(t.UserID), types.TaskEvent{
		Type:       "task.progress",
		TaskID:     taskID,
		Step:       step,
		TotalSteps: totalSteps,
		StepName:   stepName,
		Percentage: pct,
		Message:    message,
	})
}

// Complete marks the task completed, records result, and publishes
// task.completed.
func (b *Broker) Complete(ctx context.Context, taskID string, result any) error {
	t, err := b.Get(ctx, taskID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return apierr.Fatal("marshal task result", err)
	}
	t.Status = types.TaskCompleted
	t.Result = raw
	t.Progress.Percentage = 100
	t.Progress.StepName = "Completed"
	t.UpdatedAt = time.Now().UTC()
	if err := b.saveTask(ctx, t); err != nil {
		return err
	}
	return b.Publish(ctx, tasksChannel(t.UserID), types.TaskEvent{
		Type:    "task.completed",
		TaskID:  taskID,
		Result:  raw,
		Message: "task completed successfully",
	})
}

// Fail marks the task failed and publishes task.failed with
// retry_available=true — the user initiates retry explicitly.
func (b *Broker) Fail(ctx context.Context, taskID string, cause error) error {
	t, err := b.Get(ctx, taskID)
	if err != nil {
		return err
	}
	t.Status = types.TaskFailed
	t.Error = cause.Error()
	t.UpdatedAt = time.Now().UTC()
	if err := b.saveTask(ctx, t); err != nil {
		return err
	}
	return b.Publish(ctx, tasksChannel(t.UserID), types.TaskEvent{
		Type:           "task.failed",
		TaskID:         taskID,
		Error:          cause.Error(),
		RetryAvailable: true,
	})
}

// Cancel transitions a task from pending to cancelled. Only pending tasks
// may be cancelled; in-flight pipelines are not forcibly interrupted.
func (b *Broker) Cancel(ctx context.Context, taskID string) error {
	t, err := b.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != types.TaskPending {
		return apierr.Validationf("task %s is not pending (status=%s)", taskID, t.Status)
	}
	t.Status = types.TaskCancelled
	t.UpdatedAt = time.Now().UTC()
	return b.saveTask(ctx, t)
}

// Retry re-enqueues a failed task with its original parameters. Only
// permitted from failed.
func (b *Broker) Retry(ctx context.Context, queueName string, taskID string) error {
	t, err := b.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != types.TaskFailed {
		return apierr.Validationf("task %s is not failed (status=%s)", taskID, t.Status)
	}
	t.Status = types.TaskPending
	t.Error = ""
	t.Progress = types.TaskProgress{StepName: "Queued"}
	t.UpdatedAt = time.Now().UTC()
	if err := b.saveTask(ctx, t); err != nil {
		return err
	}
	return b.rdb.LPush(ctx, queueKey(queueName, t.Priority), t.ID).Err()
}

// QueueDepth returns the current length of queue name's high- and
// normal-priority lists, used by the metrics collector to publish queue
// depth gauges.
func (b *Broker) QueueDepth(ctx context.Context, queueName string) (high, normal int64, err error) {
	high, err = b.rdb.LLen(ctx, queueKey(queueName, types.PriorityHigh)).Result()
	if err != nil {
		return 0, 0, apierr.Transient("read queue depth", err)
	}
	normal, err = b.rdb.LLen(ctx, queueKey(queueName, types.PriorityNormal)).Result()
	if err != nil {
		return 0, 0, apierr.Transient("read queue depth", err)
	}
	return high, normal, nil
}

// Publish emits an arbitrary control-plane event on channel — used both
// for task events and per-entity status events (team:status,
// workspace:status, sandbox:status).
func (b *Broker) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return apierr.Fatal("marshal published message", err)
	}
	if err := b.rdb.Publish(ctx, channel, string(data)).Err(); err != nil {
		return apierr.Transient("publish", err)
	}
	return nil
}

// Subscription is a single caller's independent stream; subscriptions do
// not share state and late subscribers never see prior messages (fan-out
// pub/sub semantics).
type Subscription struct {
	ps *redis.PubSub
}

// Subscribe opens an independent subscription to channel.
func (b *Broker) Subscribe(ctx context.Context, channel string) *Subscription {
	return &Subscription{ps: b.rdb.Subscribe(ctx, channel)}
}

// Channel returns the raw message channel; callers json.Unmarshal payloads
// themselves since the shape varies by channel (TaskEvent vs StatusEvent).
func (s *Subscription) Channel() <-chan *redis.Message { return s.ps.Channel() }

func (s *Subscription) Close() error { return s.ps.Close() }
