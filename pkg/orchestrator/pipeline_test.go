package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/redis/go-redis/v9"
)

func newPipelineTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return broker.NewWithClient(rdb)
}

// RunPipeline executes steps strictly in order and stops at the first
// failing one: steps after a failure never run.
func TestRunPipelineStopsAtFirstFailure(t *testing.T) {
	b := newPipelineTestBroker(t)
	ctx := context.Background()
	taskID, err := b.Enqueue(ctx, "provisioning", types.TaskWorkspaceProvision, map[string]string{}, "user-1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var ran []string
	steps := []Step{
		{Name: "step-one", Run: func(ctx context.Context) error {
			ran = append(ran, "step-one")
			return nil
		}},
		{Name: "step-two", Run: func(ctx context.Context) error {
			ran = append(ran, "step-two")
			return errors.New("boom")
		}},
		{Name: "step-three", Run: func(ctx context.Context) error {
			ran = append(ran, "step-three")
			return nil
		}},
	}

	if err := RunPipeline(ctx, b, taskID, "test.task", steps); err == nil {
		t.Fatal("expected pipeline to return an error")
	}
	if len(ran) != 2 || ran[0] != "step-one" || ran[1] != "step-two" {
		t.Fatalf("expected exactly [step-one step-two] to run, got %v", ran)
	}

	task, err := b.Get(ctx, taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != types.TaskFailed {
		t.Fatalf("expected task status failed, got %s", task.Status)
	}
}

// A pipeline whose steps all succeed runs to completion and leaves the
// task at 100% progress without marking it completed — Complete is the
// caller's job, not RunPipeline's (Dispatcher.runPipeline in dispatch.go
// finalizes on the happy path).
func TestRunPipelineRunsAllStepsOnSuccess(t *testing.T) {
	b := newPipelineTestBroker(t)
	ctx := context.Background()
	taskID, err := b.Enqueue(ctx, "provisioning", types.TaskTeamProvision, map[string]string{}, "user-1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var ran []string
	steps := []Step{
		{Name: "a", Run: func(ctx context.Context) error { ran = append(ran, "a"); return nil }},
		{Name: "b", Run: func(ctx context.Context) error { ran = append(ran, "b"); return nil }},
	}
	if err := RunPipeline(ctx, b, taskID, "test.task", steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("expected both steps to run, got %v", ran)
	}

	task, err := b.Get(ctx, taskID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Progress.Percentage != 100 {
		t.Fatalf("expected progress 100, got %d", task.Progress.Percentage)
	}
}

// RunTeardown is best-effort: a failing step is logged, not fatal, and
// every remaining step still runs regardless of earlier failures.
func TestRunTeardownContinuesPastFailures(t *testing.T) {
	b := newPipelineTestBroker(t)
	ctx := context.Background()
	taskID, err := b.Enqueue(ctx, "provisioning", types.TaskWorkspaceDelete, map[string]string{}, "user-1", types.PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var ran []string
	steps := []Step{
		{Name: "remove-repo", Run: func(ctx context.Context) error {
			ran = append(ran, "remove-repo")
			return errors.New("repo already gone")
		}},
		{Name: "remove-dns", Run: func(ctx context.Context) error {
			ran = append(ran, "remove-dns")
			return nil
		}},
		{Name: "remove-container", Run: func(ctx context.Context) error {
			ran = append(ran, "remove-container")
			return errors.New("container already gone")
		}},
	}

	RunTeardown(ctx, b, taskID, "test.task", steps)

	if len(ran) != 3 {
		t.Fatalf("expected all three teardown steps to run despite failures, got %v", ran)
	}
}

func TestWrapFatal(t *testing.T) {
	if err := wrapFatal("detail", nil); err != nil {
		t.Fatalf("expected nil passthrough, got %v", err)
	}
	err := wrapFatal("load config", errors.New("missing file"))
	if err == nil {
		t.Fatal("expected wrapped error")
	}
}
