/*
Package log provides structured logging for the control plane using
zerolog.

The package wraps zerolog to give every component (orchestrator worker,
gateway, ctl) JSON-structured logs with component-specific child loggers,
a configurable level, and helpers for the identifiers that recur across
pipelines: workspace slug, team slug, sandbox full-slug, task id.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("orchestrator worker starting")

	wsLog := log.WithWorkspace("acme")
	wsLog.Info().Str("task_id", taskID).Msg("workspace.provision started")

	log.Logger.Error().Err(err).Str("team_slug", "acme").Msg("health check failed")

# Context loggers

WithComponent, WithWorkspace, WithTeam, WithSandbox, and WithTaskID each
return a child zerolog.Logger with one field pre-attached, so a pipeline
step's logger already carries the entity it's operating on without
repeating the field at every call site.

# Design

A single package-level Logger, initialized once via Init and read
thereafter from every package, not a logger threaded through every
constructor. Secrets (API token plaintext, app-registration secrets,
webhook secrets) are never logged; adapters log identifiers and
outcomes, not payload contents.
*/
package log
