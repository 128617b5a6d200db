package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// teamContainerNames returns the api/web container names for a team slug.
// The "-1" suffix matches the compose-style address the gateway derives
// purely from the slug ("kanban-team-{slug}-api-1:8000"), so the
// orchestrator and the gateway never need to exchange discovered addresses
// out of band.
func teamContainerNames(slug string) (api, web string) {
	return fmt.Sprintf("kanban-team-%s-api-1", slug), fmt.Sprintf("kanban-team-%s-web-1", slug)
}

// BuildTeamProvisionSteps returns the eleven ordered steps of
// team.provision. The Team row itself is expected to already exist in
// the store with status=provisioning; this pipeline only transitions it
// to active on success.
func BuildTeamProvisionSteps(d *Deps, teamID, teamSlug string) []Step {
	domain := d.Config.Domain
	fqdn := teamSlug + "." + domain
	teamDir := filepath.Join(d.Config.DataDir, "teams", teamSlug)
	apiName, webName := teamContainerNames(teamSlug)

	return []Step{
		{Name: "Validating team configuration", Run: func(ctx context.Context) error {
			return store.ValidateSlug(teamSlug, d.Config.ReservedSlugs)
		}},
		{Name: "Creating team directory", Run: func(ctx context.Context) error {
			for _, sub := range []string{
				"db", filepath.Join("uploads", "cards"), filepath.Join("uploads", "avatars"),
				filepath.Join("cache", "previews"), "backups", "logs",
			} {
				if err := os.MkdirAll(filepath.Join(teamDir, sub), 0755); err != nil {
					return wrapFatal("create team directory", err)
				}
			}
			return nil
		}},
		{Name: "Initializing database", Run: func(ctx context.Context) error {
			dbFile := filepath.Join(teamDir, "db", "team.json")
			if _, err := os.Stat(dbFile); err == nil {
				return nil
			}
			return wrapFatal("init team document db", os.WriteFile(dbFile, []byte(`{"_default": {}}`), 0644))
		}},
		{Name: "Generating configuration", Run: func(ctx context.Context) error {
			// Gateway discovery is label-driven; nothing to render here.
			return nil
		}},
		{Name: "Adding DNS record", Run: func(ctx context.Context) error {
			return d.DNS.AddRecord(teamSlug, d.Config.HostIP)
		}},
		{Name: "Waiting for DNS propagation", Run: func(ctx context.Context) error {
			return d.DNS.WaitForPropagation(teamSlug, 30*time.Second)
		}},
		{Name: "Issuing TLS certificate", Run: func(ctx context.Context) error {
			_, err := d.TLS.Issue(ctx, "team", fqdn)
			return err
		}},
		{Name: "Updating gateway configuration", Run: func(ctx context.Context) error {
			// Label-driven discovery; no central config to push.
			return nil
		}},
		{Name: "Starting containers", Run: func(ctx context.Context) error {
			teamHostPath := filepath.Join(d.Config.HostProjectPath, "data", "teams", teamSlug)
			apiSpec := types.ContainerSpec{
				Name:    apiName,
				Image:   "kanban-team-backend:latest",
				Network: d.Config.ContainerNetwork,
				Env: map[string]string{
					"REDIS_URL":  d.Config.RedisURL,
					"DOMAIN":     domain,
					"PORTAL_URL": "https://" + domain,
					"TEAM_SLUG":  teamSlug,
				},
				Mounts:        []types.Mount{{Source: teamHostPath, Target: "/app/data"}},
				RestartPolicy: "unless-stopped",
				Labels: map[string]string{
					"kanban.host":          fqdn,
					"kanban.path_prefix":   "/api",
					"kanban.strip_prefix":  "true",
					"kanban.port":          "8000",
				},
			}
			if err := d.Runtime.Create(ctx, apiSpec); err != nil {
				return err
			}
			webSpec := types.ContainerSpec{
				Name:          webName,
				Image:         "kanban-team-frontend:latest",
				Network:       d.Config.ContainerNetwork,
				RestartPolicy: "unless-stopped",
				Labels: map[string]string{
					"kanban.host": fqdn,
					"kanban.port": "80",
				},
			}
			return d.Runtime.Create(ctx, webSpec)
		}},
		{Name: "Running health check", Run: func(ctx context.Context) error {
			return pollContainersRunning(ctx, d, 10, time.Second, apiName, webName)
		}},
		{Name: "Finalizing setup", Run: func(ctx context.Context) error {
			team, err := d.Store.GetTeam(teamID)
			if err != nil {
				return err
			}
			team.Status = types.TeamActive
			if err := d.Store.UpdateTeam(team); err != nil {
				return err
			}
			return d.Broker.Publish(ctx, "team:status", types.StatusEvent{
				ID: teamID, Slug: teamSlug, Status: "active",
			})
		}},
	}
}
