package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kanbanhq/controlplane/pkg/adapters/identity"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
)

func sandboxContainerNames(fullSlug string) (api, web, agent string) {
	return fmt.Sprintf("kanban-sandbox-%s-api-1", fullSlug),
		fmt.Sprintf("kanban-sandbox-%s-web-1", fullSlug),
		fmt.Sprintf("kanban-agent-%s", fullSlug)
}

// BuildSandboxProvisionSteps returns the eight steps of sandbox.provision.
func BuildSandboxProvisionSteps(d *Deps, payload SandboxProvisionPayload) []Step {
	fqdn := payload.FullSlug + ".sandbox." + d.Config.Domain
	branch := "sandbox/" + payload.FullSlug
	apiName, webName, agentName := sandboxContainerNames(payload.FullSlug)
	dbName := strings.ReplaceAll(payload.FullSlug, "-", "_")
	webhookSecret := ""

	return []Step{
		{Name: "Validating parent workspace", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if ws.Status != types.WorkspaceActive {
				return apierr.Validationf("workspace %s is not active (status=%s)", ws.Slug, ws.Status)
			}
			if !ws.IsAppBacked() {
				return apierr.Validation("workspace is kanban-only; sandboxes require an app-backed workspace")
			}
			return nil
		}},
		{Name: "Creating sandbox branch", Run: func(ctx context.Context) error {
			owner, repo := d.Config.GitHubOrg, payload.WorkspaceSlug
			return d.Repo.BranchCreate(ctx, owner, repo, branch, payload.SourceBranch)
		}},
		{Name: "Cloning application database", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if ws.AppDatabaseName == nil {
				return apierr.Fatal("workspace has no application database to clone", nil)
			}
			return d.DBCloner.Clone(ctx, d.Config.PostgresContainer, *ws.AppDatabaseName, d.Config.PostgresContainer, dbName)
		}},
		{Name: "Starting sandbox containers", Run: func(ctx context.Context) error {
			apiSpec := types.ContainerSpec{
				Name: apiName, Image: "kanban-team-backend:latest", Network: d.Config.ContainerNetwork,
				Env:           map[string]string{"DATABASE_URL": dbName, "SANDBOX_BRANCH": branch},
				RestartPolicy: "unless-stopped",
				Labels:        map[string]string{"kanban.host": fqdn, "kanban.path_prefix": "/api", "kanban.strip_prefix": "true", "kanban.port": "8000"},
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
		}},
		{Name: "Provisioning agent container", Run: func(ctx context.Context) error {
			secret, err := identity.GenerateWebhookSecret()
			if err != nil {
				return err
			}
			webhookSecret = secret
			env := map[string]string{
				"KANBAN_API_URL": fmt.Sprintf("https://%s.%s/api", payload.WorkspaceSlug, d.Config.Domain),
				"WEBHOOK_SECRET": secret,
				"SANDBOX_BRANCH": branch,
				"LLM_PROVIDER":   d.Config.LLMProvider,
			}
			hostProjectPath := d.Config.HostProjectPath + "/" + payload.WorkspaceSlug
			mounts := []types.Mount{{Source: hostProjectPath, Target: "/workspace"}}
			if credPath := os.Getenv("CP_AGENT_HOST_CREDENTIALS_PATH"); credPath != "" {
				if _, err := os.Stat(credPath); err == nil {
					mounts = append(mounts, types.Mount{Source: credPath, Target: "/root/.credentials", ReadOnly: true})
				}
			}
			spec := types.ContainerSpec{
				Name: agentName, Image: d.Config.AgentImage, Network: d.Config.ContainerNetwork,
				Env: env, Mounts: mounts, RestartPolicy: "unless-stopped",
			}
			if err := d.Runtime.Create(ctx, spec); err != nil {
				return err
			}
			return pollContainersRunning(ctx, d, 10, time.Second, agentName)
		}},
		{Name: "Issuing TLS certificate", Run: func(ctx context.Context) error {
			_, err := d.TLS.Issue(ctx, "sandbox", fqdn)
			return err
		}},
		{Name: "Updating identity-provider redirect URIs", Run: func(ctx context.Context) error {
			ws, err := d.Store.GetWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			if ws.AzureObjectID == nil {
				return nil // kanban-only workspaces never reach here, but tolerate a missing registration
			}
			redirectURIs := []string{"https://" + payload.WorkspaceSlug + ".app." + d.Config.Domain + "/auth/callback"}
			sandboxes, err := d.Store.ListSandboxesByWorkspace(payload.WorkspaceID)
			if err != nil {
				return err
			}
			for _, sb := range sandboxes {
				redirectURIs = append(redirectURIs, "https://"+sb.FullSlug+".sandbox."+d.Config.Domain+"/auth/callback")
			}
			redirectURIs = append(redirectURIs, "https://"+fqdn+"/auth/callback")
			return d.Identity.UpdateRedirectURIs(ctx, *ws.AzureObjectID, redirectURIs)
		}},
		{Name: "Finalizing sandbox setup", Run: func(ctx context.Context) error {
			sb, err := d.Store.GetSandbox(payload.SandboxID)
			if err != nil {
				return err
			}
			sb.Status = types.SandboxActive
			sb.Branch = branch
			sb.DatabaseName = dbName
			sb.AgentContainer = agentName
			sb.WebhookSecret = webhookSecret
			if err := d.Store.UpdateSandbox(sb); err != nil {
				return err
			}
			return d.Broker.Publish(ctx, "sandbox:status", types.StatusEvent{
				ID: sb.ID, Slug: payload.FullSlug, Status: "active",
				ResourceIDs: map[string]string{"agent_webhook_secret": webhookSecret},
			})
		}},
	}
}
