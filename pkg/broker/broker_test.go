package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/redis/go-redis/v9"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewWithClient(rdb)
}

func TestEnqueueClaimRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	id, err := b.Enqueue(ctx, "provisioning", types.TaskWorkspaceProvision, map[string]string{"slug": "acme"}, "user-1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	queue, taskID, ok, err := b.Claim(ctx, []string{"provisioning"}, time.Second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !ok {
		t.Fatalf("expected a claimable task")
	}
	if queue != "provisioning" || taskID != id {
		t.Fatalf("unexpected claim result: queue=%s task=%s", queue, taskID)
	}

	task, err := b.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != types.TaskInProgress {
		t.Fatalf("expected in_progress after claim, got %s", task.Status)
	}
}

func TestHighPriorityDrainsFirst(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	_, err := b.Enqueue(ctx, "provisioning", types.TaskWorkspaceProvision, nil, "u1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue normal: %v", err)
	}
	highID, err := b.Enqueue(ctx, "provisioning", types.TaskWorkspaceProvision, nil, "u1", types.PriorityHigh)
	if err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	_, taskID, ok, err := b.Claim(ctx, []string{"provisioning"}, time.Second)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if taskID != highID {
		t.Fatalf("expected high priority task to drain first, got %s", taskID)
	}
}

func TestProgressMonotonic(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	id, err := b.Enqueue(ctx, "provisioning", types.TaskTeamProvision, nil, "u1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := b.UpdateProgress(ctx, id, 5, 11, "dns", ""); err != nil {
		t.Fatalf("progress: %v", err)
	}
	// A late, lower-numbered step update (e.g. a retried earlier step)
	// must never move the reported percentage backwards.
	if err := b.UpdateProgress(ctx, id, 1, 11, "validate", ""); err != nil {
		t.Fatalf("progress: %v", err)
	}

	task, err := b.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Progress.Percentage < 45 {
		t.Fatalf("expected percentage to not regress, got %d", task.Progress.Percentage)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	id, err := b.Enqueue(ctx, "provisioning", types.TaskSandboxDelete, nil, "u1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := b.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := b.UpdateProgress(ctx, id, 1, 1, "started", ""); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if err := b.Cancel(ctx, id); err == nil {
		t.Fatalf("expected cancel to be rejected once task is in_progress")
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	id, err := b.Enqueue(ctx, "provisioning", types.TaskWorkspaceProvision, nil, "u1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := b.Retry(ctx, "provisioning", id); err == nil {
		t.Fatalf("expected retry to fail on a pending task")
	}

	if err := b.Fail(ctx, id, context.DeadlineExceeded); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := b.Retry(ctx, "provisioning", id); err != nil {
		t.Fatalf("retry: %v", err)
	}

	task, err := b.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != types.TaskPending {
		t.Fatalf("expected pending after retry, got %s", task.Status)
	}
}

func TestSubscribePublishFanOut(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	sub := b.Subscribe(ctx, "workspace:status")
	defer sub.Close()
	// Allow miniredis to register the subscription before publishing.
	time.Sleep(50 * time.Millisecond)

	if err := b.Publish(ctx, "workspace:status", types.StatusEvent{Slug: "acme", Status: "active"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Payload == "" {
			t.Fatalf("expected non-empty payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for published message")
	}
}
