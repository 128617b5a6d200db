package orchestrator

import (
	"context"
	"time"

	"github.com/kanbanhq/controlplane/pkg/types"
)

// BuildTeamRestartSteps stops and restarts a team's containers,
// re-running the health check before publishing active again. The
// rebuild step builds no images whatever the Rebuild flag says; restart
// starts whatever image tag is already published.
func BuildTeamRestartSteps(d *Deps, payload TeamRestartPayload) []Step {
	apiName, webName := teamContainerNames(payload.TeamSlug)

	return []Step{
		{Name: "Stopping containers", Run: func(ctx context.Context) error {
			if err := d.Runtime.Remove(ctx, apiName); err != nil {
				return err
			}
			return d.Runtime.Remove(ctx, webName)
		}},
		{Name: "Rebuilding images", Run: func(ctx context.Context) error {
			if !payload.Rebuild {
				return nil
			}
			// Image builds are performed by CI outside this control plane;
			// restart only ever pulls whatever tag is already published.
			return nil
		}},
		{Name: "Starting containers", Run: func(ctx context.Context) error {
			team, err := d.Store.GetTeam(payload.TeamID)
			if err != nil {
				return err
			}
			return startTeamContainers(ctx, d, team.Slug)
		}},
		{Name: "Running health check", Run: func(ctx context.Context) error {
			return pollContainersRunning(ctx, d, 10, time.Second, apiName, webName)
		}},
		{Name: "Finalizing restart", Run: func(ctx context.Context) error {
			team, err := d.Store.GetTeam(payload.TeamID)
			if err != nil {
				return err
			}
			team.Status = types.TeamActive
			if err := d.Store.UpdateTeam(team); err != nil {
				return err
			}
			return d.Broker.Publish(ctx, "team:status", types.StatusEvent{
				ID: team.ID, Slug: team.Slug, Status: "active",
			})
		}},
	}
}

// BuildTeamStartSteps brings a suspended team back to active, the pipeline
// the gateway's auto-start routing enqueues. It differs from restart in
// that containers are created fresh rather than stopped first, since a
// suspended team has none running.
func BuildTeamStartSteps(d *Deps, payload TeamProvisionPayload) []Step {
	apiName, webName := teamContainerNames(payload.TeamSlug)

	return []Step{
		{Name: "Starting containers", Run: func(ctx context.Context) error {
			return startTeamContainers(ctx, d, payload.TeamSlug)
		}},
		{Name: "Running health check", Run: func(ctx context.Context) error {
			return pollContainersRunning(ctx, d, 10, time.Second, apiName, webName)
		}},
		{Name: "Finalizing start", Run: func(ctx context.Context) error {
			team, err := d.Store.GetTeam(payload.TeamID)
			if err != nil {
				return err
			}
			team.Status = types.TeamActive
			if err := d.Store.UpdateTeam(team); err != nil {
				return err
			}
			return d.Broker.Publish(ctx, "team:status", types.StatusEvent{
				ID: team.ID, Slug: team.Slug, Status: "active",
			})
		}},
	}
}

// startTeamContainers recreates a team's api/web containers with the same
// spec team.provision used, since Runtime.Create is idempotent and this
// is the only container-spec definition either pipeline needs.
func startTeamContainers(ctx context.Context, d *Deps, teamSlug string) error {
	fqdn := teamSlug + "." + d.Config.Domain
	apiName, webName := teamContainerNames(teamSlug)
	teamHostPath := d.Config.HostProjectPath + "/data/teams/" + teamSlug

	apiSpec := types.ContainerSpec{
		Name:    apiName,
		Image:   "kanban-team-backend:latest",
		Network: d.Config.ContainerNetwork,
		Env: map[string]string{
			"REDIS_URL":  d.Config.RedisURL,
			"DOMAIN":     d.Config.Domain,
			"PORTAL_URL": "https://" + d.Config.Domain,
			"TEAM_SLUG":  teamSlug,
		},
		Mounts:        []types.Mount{{Source: teamHostPath, Target: "/app/data"}},
		RestartPolicy: "unless-stopped",
		Labels: map[string]string{
			"kanban.host": fqdn, "kanban.path_prefix": "/api", "kanban.strip_prefix": "true", "kanban.port": "8000",
		},
	}
	if err := d.Runtime.Create(ctx, apiSpec); err != nil {
		return err
	}
	webSpec := types.ContainerSpec{
		Name: webName, Image: "kanban-team-frontend:latest", Network: d.Config.ContainerNetwork,
		RestartPolicy: "unless-stopped",
		Labels:        map[string]string{"kanban.host": fqdn, "kanban.port": "80"},
	}
	return d.Runtime.Create(ctx, webSpec)
}

// BuildWorkspaceRestartSteps restarts a workspace's app containers plus
// its underlying team. Kanban-only workspaces only restart the team.
func BuildWorkspaceRestartSteps(d *Deps, payload WorkspaceRestartPayload) []Step {
	return []Step{
		{Name: "Restarting application containers", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if !ws.IsAppBacked() {
				return nil
			}
			apiName, webName := appContainerNames(ws.Slug)
			if err := d.Runtime.Remove(ctx, apiName); err != nil {
				return err
			}
			if err := d.Runtime.Remove(ctx, webName); err != nil {
				return err
			}
			return startWorkspaceAppContainers(ctx, d, ws)
		}},
		{Name: "Restarting tenant team", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if ws.KanbanTeamID == nil {
				return nil
			}
			team, err := d.Store.GetTeam(*ws.KanbanTeamID)
			if err != nil {
				return err
			}
			for _, step := range BuildTeamRestartSteps(d, TeamRestartPayload{TeamID: team.ID, TeamSlug: team.Slug, Rebuild: payload.Rebuild}) {
				if err := step.Run(ctx); err != nil {
					return err
				}
			}
			return nil
		}},
		{Name: "Finalizing restart", Run: func(ctx context.Context) error {
			return d.Broker.Publish(ctx, "workspace:status", types.StatusEvent{
				ID: payload.WorkspaceID, Slug: payload.Slug, Status: "active",
			})
		}},
	}
}

// BuildWorkspaceStartSteps brings a suspended workspace back to active on
// the gateway's auto-start request.
func BuildWorkspaceStartSteps(d *Deps, payload WorkspaceDeletePayload) []Step {
	return []Step{
		{Name: "Starting application containers", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if !ws.IsAppBacked() {
				return nil
			}
			return startWorkspaceAppContainers(ctx, d, ws)
		}},
		{Name: "Starting tenant team", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if ws.KanbanTeamID == nil {
				return nil
			}
			team, err := d.Store.GetTeam(*ws.KanbanTeamID)
			if err != nil {
				return err
			}
			for _, step := range BuildTeamStartSteps(d, TeamProvisionPayload{TeamID: team.ID, TeamSlug: team.Slug}) {
				if err := step.Run(ctx); err != nil {
					return err
				}
			}
			return nil
		}},
		{Name: "Finalizing start", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			ws.Status = types.WorkspaceActive
			if err := d.Store.UpdateWorkspace(ws); err != nil {
				return err
			}
			return d.Broker.Publish(ctx, "workspace:status", types.StatusEvent{
				ID: ws.ID, Slug: ws.Slug, Status: "active",
			})
		}},
	}
}

func startWorkspaceAppContainers(ctx context.Context, d *Deps, ws *types.Workspace) error {
	if ws.AppTemplateID == nil || ws.AppDatabaseName == nil {
		return nil
	}
	tpl, err := d.Store.GetAppTemplate(*ws.AppTemplateID)
	if err != nil {
		return err
	}
	appFQDN := ws.Slug + ".app." + d.Config.Domain
	apiName, webName := appContainerNames(ws.Slug)
	apiSpec := types.ContainerSpec{
		Name:  apiName,
		Image: tpl.Slug + "-backend:latest", Network: d.Config.ContainerNetwork,
		Env:           map[string]string{"DATABASE_URL": *ws.AppDatabaseName, "DOMAIN": d.Config.Domain},
		RestartPolicy: "unless-stopped",
		Labels: map[string]string{
			"kanban.host": appFQDN, "kanban.path_prefix": "/api", "kanban.strip_prefix": "true",
			"kanban.port": "8000", "kanban.tls": "true",
		},
	}
	if err := d.Runtime.Create(ctx, apiSpec); err != nil {
		return err
	}
	webSpec := types.ContainerSpec{
		Name: webName, Image: tpl.Slug + "-frontend:latest", Network: d.Config.ContainerNetwork,
		RestartPolicy: "unless-stopped",
		Labels:        map[string]string{"kanban.host": appFQDN, "kanban.port": "80", "kanban.tls": "true"},
	}
	return d.Runtime.Create(ctx, webSpec)
}
