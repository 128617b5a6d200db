package orchestrator

import (
	"context"
	"testing"

	"github.com/kanbanhq/controlplane/pkg/types"
)

// An unrecognized task type is failed outright rather than silently
// dropped, since a task stuck in "in_progress" forever would never
// surface to an operator.
func TestDispatcherRunTask_FailsUnknownTaskType(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	disp := NewDispatcher(d)

	taskID, err := d.Broker.Enqueue(context.Background(), "provisioning", types.TaskType("bogus"), map[string]string{}, "user-1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	disp.runTask(context.Background(), taskID)

	task, err := d.Broker.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != types.TaskFailed {
		t.Fatalf("expected task to be failed, got status %s", task.Status)
	}
}

// A payload that doesn't unmarshal into the task type's expected shape
// fails the task instead of panicking the dispatcher.
func TestDispatcherRunTask_FailsOnMalformedPayload(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	disp := NewDispatcher(d)

	taskID, err := d.Broker.Enqueue(context.Background(), "provisioning", types.TaskWorkspaceProvision, "not-an-object", "user-1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	disp.runTask(context.Background(), taskID)

	task, err := d.Broker.Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != types.TaskFailed {
		t.Fatalf("expected task to be failed, got status %s", task.Status)
	}
}
