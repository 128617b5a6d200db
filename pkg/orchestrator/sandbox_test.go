package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/kanbanhq/controlplane/pkg/types"
)

// Step 1 of sandbox.provision refuses to proceed against a workspace that
// isn't active yet, before touching the repo/database/container adapters.
func TestSandboxProvisionValidation_RejectsInactiveWorkspace(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceProvisioning}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	payload := SandboxProvisionPayload{WorkspaceID: "ws-1", WorkspaceSlug: "acme", FullSlug: "acme-pr42"}
	steps := BuildSandboxProvisionSteps(d, payload)
	if err := steps[0].Run(context.Background()); err == nil {
		t.Fatal("expected inactive workspace to be rejected")
	}
}

// Step 1 also refuses a kanban-only workspace, since sandboxes clone an
// application that a kanban-only workspace doesn't have.
func TestSandboxProvisionValidation_RejectsKanbanOnlyWorkspace(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceActive}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	payload := SandboxProvisionPayload{WorkspaceID: "ws-1", WorkspaceSlug: "acme", FullSlug: "acme-pr42"}
	steps := BuildSandboxProvisionSteps(d, payload)
	if err := steps[0].Run(context.Background()); err == nil {
		t.Fatal("expected kanban-only workspace to be rejected")
	}
}

// The identity-provider redirect step is a no-op for a kanban-only
// workspace: there's no app registration to update.
func TestSandboxProvisionRedirectURIs_SkipsWorkspaceWithoutAzureRegistration(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceActive}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	payload := SandboxProvisionPayload{WorkspaceID: "ws-1", WorkspaceSlug: "acme", FullSlug: "acme-pr42"}
	steps := BuildSandboxProvisionSteps(d, payload)
	redirectStep := steps[6]
	if err := redirectStep.Run(context.Background()); err != nil {
		t.Fatalf("expected redirect step to no-op without an app registration, got: %v", err)
	}
}

// The finalize step activates the sandbox, records the derived branch and
// database names, and publishes sandbox:status.
func TestSandboxProvisionFinalize_PublishesActiveStatus(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	tplID := "tpl-1"
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceActive, AppTemplateID: &tplID}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	sb := &types.Sandbox{ID: "sb-1", WorkspaceID: "ws-1", Slug: "pr42", FullSlug: "acme-pr42", Status: types.SandboxProvisioning}
	if err := d.Store.CreateSandbox(sb); err != nil {
		t.Fatalf("create sandbox: %v", err)
	}

	sub := d.Broker.Subscribe(context.Background(), "sandbox:status")
	defer sub.Close()

	payload := SandboxProvisionPayload{WorkspaceID: "ws-1", SandboxID: "sb-1", WorkspaceSlug: "acme", FullSlug: "acme-pr42"}
	steps := BuildSandboxProvisionSteps(d, payload)
	finalize := steps[len(steps)-1]
	if err := finalize.Run(context.Background()); err != nil {
		t.Fatalf("finalize step: %v", err)
	}

	got, err := d.Store.GetSandbox("sb-1")
	if err != nil {
		t.Fatalf("get sandbox: %v", err)
	}
	if got.Status != types.SandboxActive {
		t.Fatalf("expected sandbox active, got %s", got.Status)
	}
	if got.Branch != "sandbox/acme-pr42" {
		t.Fatalf("expected derived branch name, got %q", got.Branch)
	}

	select {
	case msg := <-sub.Channel():
		if msg == nil {
			t.Fatal("expected a status message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sandbox:status publish")
	}
}
