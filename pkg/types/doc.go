/*
Package types defines the core data structures shared across the control
plane: the workspace/team/sandbox tenancy model, the task records the
broker and orchestrator exchange, and the adapter-facing value types
(container specs, TLS certificates, app registrations) that carry state
between pipeline steps.

# Tenancy Model

  - User: an authenticated portal account.
  - Workspace: a tenant's top-level unit, either kanban-only or backed by
    an AppTemplate-derived application stack.
  - Team: the kanban board's own api/web containers, owned by a Workspace
    (or standalone, for a kanban-only workspace with no app).
  - Sandbox: an ephemeral per-feature-branch deployment of a workspace's
    app, cloned from its database and issued its own subdomain and TLS
    certificate.
  - Membership: a User's role (owner, admin, member, viewer) on a Team.
  - APIToken: an opaque bearer credential scoped to a subset of the REST
    API, hashed at rest.

# Task Execution

  - Task: one queued unit of provisioning or agent work, identified by
    TaskType (workspace.provision, team.restart, agent.process_card, ...)
    and carrying a TaskProgress snapshot.
  - TaskStatus / TaskPriority: the broker's lifecycle and queue-ordering
    enums.
  - TaskEvent / StatusEvent: the pub/sub payloads published on a task's
    progress channel and on a workspace/team/sandbox's own status channel.

# Adapter Value Types

  - ContainerSpec / Mount / ContainerState: the runtime adapter's
    create/inspect contract.
  - TLSCertificate: a cached certificate's file locations and expiry.
  - AppRegistration: an identity-provider app registration's client
    credentials.

# Usage

Enqueuing a workspace provision:

	task := &types.Task{
		ID:       uuid.New().String(),
		Type:     types.TaskWorkspaceProvision,
		Status:   types.TaskPending,
		Priority: types.PriorityNormal,
		UserID:   principal.UserID,
	}

# Validation

Workspace, team, and sandbox slugs share one DNS-safe, reserved-word-free
invariant, enforced by pkg/store.ValidateSlug before any row is created.
*/
package types
