package orchestrator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/config"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/redis/go-redis/v9"
)

func newWorkspaceTestDeps(t *testing.T) *Deps {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	dir, err := os.MkdirTemp("", "controlplane-workspace-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	s, err := store.NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Deps{
		Store:  s,
		Broker: broker.NewWithClient(rdb),
		Config: &config.Config{ReservedSlugs: []string{"admin", "api"}},
	}
}

// Step 1 of workspace.provision rejects a reserved slug before touching
// any downstream adapter.
func TestWorkspaceProvisionValidation_RejectsReservedSlug(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	payload := WorkspaceProvisionPayload{WorkspaceID: "ws-1", Slug: "admin"}
	steps := BuildWorkspaceProvisionSteps(d, payload)

	if err := steps[0].Run(context.Background()); err == nil {
		t.Fatal("expected reserved slug to be rejected")
	}
}

// Step 1 also rejects an app template that has been deactivated, before
// any repository/database/identity/container work is attempted.
func TestWorkspaceProvisionValidation_RejectsInactiveTemplate(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	tplID := "tpl-1"
	if err := d.Store.CreateAppTemplate(&types.AppTemplate{ID: tplID, Slug: "retired-template", Active: false}); err != nil {
		t.Fatalf("create app template: %v", err)
	}
	payload := WorkspaceProvisionPayload{WorkspaceID: "ws-1", Slug: "acme", AppTemplateID: &tplID}
	steps := BuildWorkspaceProvisionSteps(d, payload)

	if err := steps[0].Run(context.Background()); err == nil {
		t.Fatal("expected inactive app template to be rejected")
	}
}

// The finalize step flips the workspace to active and publishes
// workspace:status with every resource id the workspace has acquired
// so far.
func TestWorkspaceProvisionFinalize_PublishesActiveStatus(t *testing.T) {
	d := newWorkspaceTestDeps(t)
	repoName := "acme-app"
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceProvisioning, GitHubRepoName: &repoName}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	sub := d.Broker.Subscribe(context.Background(), "workspace:status")
	defer sub.Close()

	payload := WorkspaceProvisionPayload{WorkspaceID: "ws-1", Slug: "acme"}
	steps := BuildWorkspaceProvisionSteps(d, payload)
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
