package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/kanbanhq/controlplane/pkg/types"
)

func appContainerNames(slug string) (api, web string) {
	return fmt.Sprintf("kanban-app-%s-api-1", slug), fmt.Sprintf("kanban-app-%s-web-1", slug)
}

// BuildWorkspaceProvisionSteps returns the four steps of workspace.provision.
// The workspace row must already exist with status=provisioning; app_*
// fields are populated here as they're acquired.
func BuildWorkspaceProvisionSteps(d *Deps, payload WorkspaceProvisionPayload) []Step {
	return []Step{
		{Name: "Validating workspace configuration", Run: func(ctx context.Context) error {
			if err := store.ValidateSlug(payload.Slug, d.Config.ReservedSlugs); err != nil {
				return err
			}
			if payload.AppTemplateID != nil {
				tpl, err := d.Store.GetAppTemplate(*payload.AppTemplateID)
				if err != nil {
					return err
				}
				if !tpl.Active {
					return apierr.Validationf("app template %s is not active", tpl.Slug)
				}
			}
			return nil
		}},
		{Name: "Creating tenant team", Run: func(ctx context.Context) error {
			return provisionTeamInline(ctx, d, payload.WorkspaceID, payload.Slug)
		}},
		{Name: "Provisioning application resources", Run: func(ctx context.Context) error {
			if payload.AppTemplateID == nil {
				return nil // kanban-only workspace, nothing further to do
			}
			return provisionWorkspaceApp(ctx, d, payload)
		}},
		{Name: "Finalizing workspace setup", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			ws.Status = types.WorkspaceActive
			if err := d.Store.UpdateWorkspace(ws); err != nil {
				return err
			}
			resourceIDs := map[string]string{}
			if ws.KanbanTeamID != nil {
				resourceIDs["kanban_team_id"] = *ws.KanbanTeamID
			}
			if ws.GitHubRepoName != nil {
				resourceIDs["github_repo_name"] = *ws.GitHubRepoName
			}
			if ws.AzureAppID != nil {
				resourceIDs["azure_app_id"] = *ws.AzureAppID
			}
			return d.Broker.Publish(ctx, "workspace:status", types.StatusEvent{
				ID: ws.ID, Slug: ws.Slug, Status: "active", ResourceIDs: resourceIDs,
			})
		}},
	}
}

// provisionTeamInline runs the team.provision steps synchronously within
// the calling step rather than as an awaited sub-task, the "inline the
// sub-pipeline" option for every workspace's underlying team.
func provisionTeamInline(ctx context.Context, d *Deps, workspaceID, slug string) error {
	team, err := d.Store.GetTeamBySlug(slug)
	if err != nil {
		team = &types.Team{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Slug:        slug,
			Status:      types.TeamProvisioning,
			DataDir:     slug,
		}
		if err := d.Store.CreateTeam(team); err != nil {
			return err
		}
	}

	for _, step := range BuildTeamProvisionSteps(d, team.ID, team.Slug) {
		if err := step.Run(ctx); err != nil {
			return fmt.Errorf("team.provision step %q: %w", step.Name, err)
		}
	}

	ws, err := d.Store.GetWorkspace(workspaceID)
	if err != nil {
		return err
	}
	ws.KanbanTeamID = &team.ID
	return d.Store.UpdateWorkspace(ws)
}

// provisionWorkspaceApp runs the repo/database/identity/container (a)-(d)
// sub-steps for an app-backed workspace.
func provisionWorkspaceApp(ctx context.Context, d *Deps, payload WorkspaceProvisionPayload) error {
	tpl, err := d.Store.GetAppTemplate(*payload.AppTemplateID)
	if err != nil {
		return err
	}
	ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
	if err != nil {
		return err
	}

	// (a) repository
	if err := d.Repo.CreateFromTemplate(ctx, tpl.TemplateOrg, tpl.TemplateRepo, d.Config.GitHubOrg, payload.Slug); err != nil {
		return err
	}
	ws.GitHubRepoName = &payload.Slug

	// (b) database
	dbName := fmt.Sprintf("kanban_app_%s", payload.Slug)
	if err := d.DBCloner.CreateDatabase(ctx, d.Config.PostgresContainer, dbName); err != nil {
		return err
	}
	ws.AppDatabaseName = &dbName

	// (c) identity: redirect URIs cover the workspace app subdomain plus
	// every sandbox subdomain that exists right now (more are added as
	// sandboxes are provisioned, via update_redirect_uris).
	appFQDN := payload.Slug + ".app." + d.Config.Domain
	redirectURIs := []string{"https://" + appFQDN + "/auth/callback"}
	sandboxes, err := d.Store.ListSandboxesByWorkspace(payload.WorkspaceID)
	if err != nil {
		return err
	}
	for _, sb := range sandboxes {
		redirectURIs = append(redirectURIs, "https://"+sb.FullSlug+".sandbox."+d.Config.Domain+"/auth/callback")
	}
	appReg, err := d.Identity.CreateAppRegistration(ctx, "kanban-workspace-"+payload.Slug, redirectURIs)
	if err != nil {
		return err
	}
	secretCipher, err := d.Secrets.EncryptToString(appReg.Secret)
	if err != nil {
		return err
	}
	ws.AzureAppID = &appReg.AppID
	ws.AzureObjectID = &appReg.ObjectID
	ws.AzureSecretCipher = &secretCipher

	if err := d.Store.UpdateWorkspace(ws); err != nil {
		return err
	}

	// (d) containers, labelled for TLS-enabled host-rule {slug}.app.{domain}
	if _, err := d.TLS.Issue(ctx, "app", appFQDN); err != nil {
		return err
	}
	apiName, webName := appContainerNames(payload.Slug)
	apiSpec := types.ContainerSpec{
		Name:    apiName,
		Image:   tpl.Slug + "-backend:latest",
		Network: d.Config.ContainerNetwork,
		Env: map[string]string{
			"DATABASE_URL": dbName,
			"DOMAIN":       d.Config.Domain,
		},
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
	if err := d.Runtime.Create(ctx, webSpec); err != nil {
		return err
	}
	if err := pollContainersRunning(ctx, d, 10, time.Second, apiName, webName); err != nil {
		log.Logger.Warn().Err(err).Str("workspace", payload.Slug).Msg("app containers slow to reach running state")
	}
	return nil
}
