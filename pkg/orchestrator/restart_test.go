package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/kanbanhq/controlplane/pkg/types"
)

// Team restart never builds images itself; CI publishes the tag and this
// step is a no-op whether or not the caller asked for a rebuild.
func TestTeamRestartRebuildImages_AlwaysNoOp(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	for _, rebuild := range []bool{true, false} {
		payload := TeamRestartPayload{TeamID: "team-1", TeamSlug: "acme", Rebuild: rebuild}
		steps := BuildTeamRestartSteps(d, payload)
		if err := steps[1].Run(context.Background()); err != nil {
			t.Fatalf("rebuild=%v: expected no-op, got: %v", rebuild, err)
		}
	}
}

// A kanban-only workspace has no app containers, so workspace restart
// skips the application-container step without touching the runtime.
func TestWorkspaceRestartAppContainers_SkipsKanbanOnlyWorkspace(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceActive}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	payload := WorkspaceRestartPayload{WorkspaceID: "ws-1", Slug: "acme"}
	steps := BuildWorkspaceRestartSteps(d, payload)
	if err := steps[0].Run(context.Background()); err != nil {
		t.Fatalf("expected app-container restart to no-op for a kanban-only workspace, got: %v", err)
	}
}

// A workspace with no linked team (KanbanTeamID unset) makes the
// team-restart step a no-op instead of an error.
func TestWorkspaceRestartTeam_SkipsWhenNoTeamLinked(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceActive}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	payload := WorkspaceRestartPayload{WorkspaceID: "ws-1", Slug: "acme"}
	steps := BuildWorkspaceRestartSteps(d, payload)
	if err := steps[1].Run(context.Background()); err != nil {
		t.Fatalf("expected team restart to no-op without a linked team, got: %v", err)
	}
}

// BuildWorkspaceStartSteps' finalize step flips the workspace back to
// active and republishes workspace:status.
func TestWorkspaceStartFinalize_PublishesActiveStatus(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceSuspended}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	sub := d.Broker.Subscribe(context.Background(), "workspace:status")
	defer sub.Close()

	payload := WorkspaceDeletePayload{WorkspaceID: "ws-1", Slug: "acme"}
	steps := BuildWorkspaceStartSteps(d, payload)
	finalize := steps[len(steps)-1]
	if err := finalize.Run(context.Background()); err != nil {
		t.Fatalf("finalize step: %v", err)
	}

	got, err := d.Store.GetWorkspace("ws-1")
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if got.Status != types.WorkspaceActive {
		t.Fatalf("expected workspace active, got %s", got.Status)
	}

	select {
	case msg := <-sub.Channel():
		if msg == nil {
			t.Fatal("expected a status message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for workspace:status publish")
	}
}
