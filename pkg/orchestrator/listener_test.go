package orchestrator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/redis/go-redis/v9"
)

func newListenerTestDeps(t *testing.T) *Deps {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	dir, err := os.MkdirTemp("", "controlplane-listener-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	s, err := store.NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Deps{Store: s, Broker: broker.NewWithClient(rdb)}
}

func TestStatusListenerFoldsSuspendedWithoutClearingResourceIDs(t *testing.T) {
	d := newListenerTestDeps(t)
	ghRepo := "acme-app"
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Status: types.WorkspaceActive, GitHubRepoName: &ghRepo}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewStatusListener(d)
	go l.Run(ctx)
	time.Sleep(50 * time.Millisecond) // let subscriptions register

	if err := d.Broker.Publish(ctx, "workspace:status", types.StatusEvent{ID: "ws-1", Status: "suspended"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := d.Store.GetWorkspace("ws-1")
		if err != nil {
			t.Fatalf("get workspace: %v", err)
		}
		if got.Status == types.WorkspaceSuspended {
			if got.GitHubRepoName == nil || *got.GitHubRepoName != ghRepo {
				t.Fatalf("expected github_repo_name preserved across suspend, got %v", got.GitHubRepoName)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for suspend to fold")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatusListenerFoldsDeletedByRemovingRow(t *testing.T) {
	d := newListenerTestDeps(t)
	if err := d.Store.CreateTeam(&types.Team{ID: "team-1", WorkspaceID: "ws-1", Slug: "acme", Status: types.TeamActive}); err != nil {
		t.Fatalf("create team: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewStatusListener(d)
	go l.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	if err := d.Broker.Publish(ctx, "team:status", types.StatusEvent{ID: "team-1", Status: "deleted"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := d.Store.GetTeam("team-1")
		if err != nil {
			return // deleted
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for delete to fold")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
