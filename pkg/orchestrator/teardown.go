package orchestrator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// Teardown pipelines symmetrically reverse their provision counterparts.
// Every step runs best-effort via RunTeardown: a failing
// step is logged and the pipeline proceeds, since partial cleanup is
// preferable to an unkillable tenant. The final step always publishes
// status=deleted, on which the status listener removes the C1 row.

// BuildTeamDeleteSteps tears down a team's containers, DNS record and TLS
// certificate. Its on-disk data directory is neither archived nor
// removed.
func BuildTeamDeleteSteps(d *Deps, teamID, teamSlug string) []Step {
	apiName, webName := teamContainerNames(teamSlug)
	fqdn := teamSlug + "." + d.Config.Domain
	teamDir := filepath.Join(d.Config.DataDir, "teams", teamSlug)

	return []Step{
		{Name: "Stopping containers", Run: func(ctx context.Context) error {
			if err := d.Runtime.Remove(ctx, apiName); err != nil {
				return err
			}
			return d.Runtime.Remove(ctx, webName)
		}},
		{Name: "Removing DNS record", Run: func(ctx context.Context) error {
			return d.DNS.RemoveRecord(teamSlug)
		}},
		{Name: "Revoking certificate", Run: func(ctx context.Context) error {
			return d.TLS.Revoke(fqdn)
		}},
		{Name: "Archiving data", Run: func(ctx context.Context) error {
			backupsDir := filepath.Join(teamDir, "backups")
			if _, err := os.Stat(backupsDir); err != nil {
				return nil // never provisioned this far; nothing to archive
			}
			return nil // archival destination is operator-configured infrastructure, out of scope
		}},
		{Name: "Finalizing teardown", Run: func(ctx context.Context) error {
			return d.Broker.Publish(ctx, "team:status", types.StatusEvent{ID: teamID, Slug: teamSlug, Status: "deleted"})
		}},
	}
}

// BuildSandboxDeleteSteps tears down a sandbox's containers, database
// clone, TLS cert and branch. workspaceSlug names the GitHub repository
// the sandbox branch lives in.
func BuildSandboxDeleteSteps(d *Deps, payload SandboxDeletePayload, workspaceSlug, fullSlug, branch, dbName string) []Step {
	apiName, webName, agentName := sandboxContainerNames(fullSlug)
	fqdn := fullSlug + ".sandbox." + d.Config.Domain

	return []Step{
		{Name: "Stopping sandbox containers", Run: func(ctx context.Context) error {
			for _, name := range []string{apiName, webName, agentName} {
				if err := d.Runtime.Remove(ctx, name); err != nil {
					return err
				}
			}
			return nil
		}},
		{Name: "Dropping cloned database", Run: func(ctx context.Context) error {
			if dbName == "" {
				return nil
			}
			return d.DBCloner.Delete(ctx, d.Config.PostgresContainer, dbName)
		}},
		{Name: "Revoking certificate", Run: func(ctx context.Context) error {
			return d.TLS.Revoke(fqdn)
		}},
		{Name: "Removing branch", Run: func(ctx context.Context) error {
			if branch == "" {
				return nil
			}
			return d.Repo.BranchDelete(ctx, d.Config.GitHubOrg, workspaceSlug, branch)
		}},
		{Name: "Finalizing teardown", Run: func(ctx context.Context) error {
			return d.Broker.Publish(ctx, "sandbox:status", types.StatusEvent{ID: payload.SandboxID, Slug: fullSlug, Status: "deleted"})
		}},
	}
}

// BuildWorkspaceDeleteSteps tears down a workspace: all its sandboxes
// first, since a workspace exclusively owns its sandboxes, then the app
// resources, then the team.
func BuildWorkspaceDeleteSteps(d *Deps, payload WorkspaceDeletePayload) []Step {
	return []Step{
		{Name: "Deleting sandboxes", Run: func(ctx context.Context) error {
			sandboxes, err := d.Store.ListSandboxesByWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			for _, sb := range sandboxes {
				delPayload := SandboxDeletePayload{SandboxID: sb.ID, FullSlug: sb.FullSlug}
				RunTeardown(ctx, d.Broker, "", "sandbox.delete", BuildSandboxDeleteSteps(d, delPayload, payload.Slug, sb.FullSlug, sb.Branch, sb.DatabaseName))
				if err := d.Store.DeleteSandbox(sb.ID); err != nil {
					log.Logger.Warn().Err(err).Str("sandbox", sb.FullSlug).Msg("failed to remove sandbox row during workspace teardown")
				}
			}
			return nil
		}},
		{Name: "Deleting application resources", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if !ws.IsAppBacked() {
				return nil
			}
			if ws.GitHubRepoName != nil {
				if err := d.Repo.Delete(ctx, d.Config.GitHubOrg, *ws.GitHubRepoName); err != nil {
					log.Logger.Warn().Err(err).Msg("failed to delete app repository")
				}
			}
			if ws.AppDatabaseName != nil {
				if err := d.DBCloner.Delete(ctx, d.Config.PostgresContainer, *ws.AppDatabaseName); err != nil {
					log.Logger.Warn().Err(err).Msg("failed to drop app database")
				}
			}
			if ws.AzureObjectID != nil {
				if err := d.Identity.Delete(ctx, *ws.AzureObjectID); err != nil {
					log.Logger.Warn().Err(err).Msg("failed to delete app registration")
				}
			}
			apiName, webName := appContainerNames(ws.Slug)
			_ = d.Runtime.Remove(ctx, apiName)
			_ = d.Runtime.Remove(ctx, webName)
			return nil
		}},
		{Name: "Deleting tenant team", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if ws.KanbanTeamID == nil {
				return nil
			}
			team, err := d.Store.GetTeam(*ws.KanbanTeamID)
			if err != nil {
				return nil // already gone
			}
			RunTeardown(ctx, d.Broker, "", "team.delete", BuildTeamDeleteSteps(d, team.ID, team.Slug))
			return d.Store.DeleteTeam(team.ID)
		}},
		{Name: "Finalizing workspace teardown", Run: func(ctx context.Context) error {
			return d.Broker.Publish(ctx, "workspace:status", types.StatusEvent{ID: payload.WorkspaceID, Slug: payload.Slug, Status: "deleted"})
		}},
	}
}
