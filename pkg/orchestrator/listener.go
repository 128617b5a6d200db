package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// reconnectBackoff is how long a status listener waits after a broken
// subscription before resubscribing.
const reconnectBackoff = 5 * time.Second

// StatusListener folds team:status/workspace:status/sandbox:status events
// back into the state store. Most status transitions are already written
// by the pipeline step that causes them (see team.go/workspace.go/
// sandbox.go); this listener exists for the transitions nothing else
// writes directly — chiefly the gateway's auto-start poll publishing an
// "active" transition once a suspended container wakes, and any future
// idle-scan job suspending one outside a pipeline run. Running it
// alongside the pipeline's direct writes is harmless: both converge on
// the same row and the fold is idempotent.
type StatusListener struct {
	Deps *Deps

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStatusListener builds a StatusListener over d.
func NewStatusListener(d *Deps) *StatusListener {
	return &StatusListener{Deps: d, locks: make(map[string]*sync.Mutex)}
}

// Run subscribes to all three status channels and folds events until ctx
// is cancelled. Each channel is consumed on its own goroutine so a slow
// fold on one entity type never delays another.
func (l *StatusListener) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, entry := range []struct {
		channel string
		fold    func(types.StatusEvent) error
	}{
		{"team:status", l.foldTeam},
		{"workspace:status", l.foldWorkspace},
		{"sandbox:status", l.foldSandbox},
	} {
		wg.Add(1)
		go func(channel string, fold func(types.StatusEvent) error) {
			defer wg.Done()
			l.listen(ctx, channel, fold)
		}(entry.channel, entry.fold)
	}
	wg.Wait()
}

func (l *StatusListener) listen(ctx context.Context, channel string, fold func(types.StatusEvent) error) {
	for {
		if ctx.Err() != nil {
			return
		}

		sub := l.Deps.Broker.Subscribe(ctx, channel)
		l.drain(ctx, channel, sub, fold)
		sub.Close()

		if ctx.Err() != nil {
			return
		}
		log.Logger.Warn().Str("channel", channel).Dur("backoff", reconnectBackoff).Msg("status listener disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (l *StatusListener) drain(ctx context.Context, channel string, sub *broker.Subscription, fold func(types.StatusEvent) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var evt types.StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				log.Logger.Error().Err(err).Str("channel", channel).Msg("malformed status event")
				continue
			}
			l.withEntityLock(evt.ID, func() {
				if err := fold(evt); err != nil {
					log.Logger.Error().Err(err).Str("channel", channel).Str("id", evt.ID).Msg("failed to fold status event")
				}
			})
		}
	}
}

// withEntityLock serializes folds for a single entity id so a rapid
// "active" followed by "suspended" (or vice versa) for the same resource
// is never applied out of order across goroutines.
func (l *StatusListener) withEntityLock(id string, fn func()) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	fn()
}

func (l *StatusListener) foldTeam(evt types.StatusEvent) error {
	if evt.Status == "deleted" {
		return l.Deps.Store.DeleteTeam(evt.ID)
	}
	team, err := l.Deps.Store.GetTeam(evt.ID)
	if err != nil {
		return err
	}
	team.Status = types.TeamStatus(evt.Status)
	return l.Deps.Store.UpdateTeam(team)
}

func (l *StatusListener) foldWorkspace(evt types.StatusEvent) error {
	if evt.Status == "deleted" {
		return l.Deps.Store.DeleteWorkspace(evt.ID)
	}
	ws, err := l.Deps.Store.GetWorkspace(evt.ID)
	if err != nil {
		return err
	}
	ws.Status = types.WorkspaceStatus(evt.Status)
	if evt.Status != "suspended" {
		applyWorkspaceResourceIDs(ws, evt.ResourceIDs)
	}
	return l.Deps.Store.UpdateWorkspace(ws)
}

func (l *StatusListener) foldSandbox(evt types.StatusEvent) error {
	if evt.Status == "deleted" {
		return l.Deps.Store.DeleteSandbox(evt.ID)
	}
	sb, err := l.Deps.Store.GetSandbox(evt.ID)
	if err != nil {
		return err
	}
	sb.Status = types.SandboxStatus(evt.Status)
	return l.Deps.Store.UpdateSandbox(sb)
}

// applyWorkspaceResourceIDs merges resource identifiers carried on an
// "active" transition; a "suspended" event never touches them, preserving
// whatever kanban_team_id/github_repo_name/azure_app_id were already on
// the row.
func applyWorkspaceResourceIDs(ws *types.Workspace, resourceIDs map[string]string) {
	if v, ok := resourceIDs["kanban_team_id"]; ok {
		ws.KanbanTeamID = &v
	}
	if v, ok := resourceIDs["github_repo_name"]; ok {
		ws.GitHubRepoName = &v
	}
	if v, ok := resourceIDs["azure_app_id"]; ok {
		ws.AzureAppID = &v
	}
}
