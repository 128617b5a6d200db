// Package types holds the shared data model for the control plane: the
// entities persisted in the state store (C1) and the task envelope used by
// the broker (C2) and orchestrator (C4).
package types

import (
	"encoding/json"
	"time"
)

// WorkspaceStatus is the lifecycle state of a Workspace.
type WorkspaceStatus string

const (
	WorkspaceProvisioning WorkspaceStatus = "provisioning"
	WorkspaceActive       WorkspaceStatus = "active"
	WorkspaceSuspended    WorkspaceStatus = "suspended"
	WorkspaceDeleting     WorkspaceStatus = "deleting"
	WorkspaceFailed       WorkspaceStatus = "failed"
)

// TeamStatus mirrors WorkspaceStatus but is tracked independently since a
// team can be idle-suspended without its owning workspace changing state.
type TeamStatus string

const (
	TeamProvisioning TeamStatus = "provisioning"
	TeamActive       TeamStatus = "active"
	TeamSuspended    TeamStatus = "suspended"
	TeamDeleting     TeamStatus = "deleting"
	TeamFailed       TeamStatus = "failed"
)

// SandboxStatus mirrors WorkspaceStatus.
type SandboxStatus string

const (
	SandboxProvisioning SandboxStatus = "provisioning"
	SandboxActive       SandboxStatus = "active"
	SandboxSuspended    SandboxStatus = "suspended"
	SandboxDeleting     SandboxStatus = "deleting"
	SandboxFailed       SandboxStatus = "failed"
)

// MembershipRole is a user's role within a team.
type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleAdmin  MembershipRole = "admin"
	RoleMember MembershipRole = "member"
	RoleViewer MembershipRole = "viewer"
)

// User is an external identity subject, created on first successful
// authentication.
type User struct {
	ID          string    `json:"id"`
	ExternalSub string    `json:"external_sub"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	LastLoginAt time.Time `json:"last_login_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AppTemplate is a registry entry describing a template source repository
// workspaces may be provisioned from.
type AppTemplate struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	DisplayName  string    `json:"display_name"`
	TemplateOrg  string    `json:"template_org"`
	TemplateRepo string    `json:"template_repo"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Workspace groups a kanban team and, optionally, one custom application
// plus its sandboxes.
type Workspace struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	OwnerUserID string          `json:"owner_user_id"`
	Status      WorkspaceStatus `json:"status"`

	AppTemplateID *string `json:"app_template_id,omitempty"`

	// app_* fields are all-null (kanban-only) or all-set (app-backed);
	// partial states are only ever transient during provisioning/teardown.
	KanbanTeamID      *string `json:"kanban_team_id,omitempty"`
	GitHubRepoName    *string `json:"github_repo_name,omitempty"`
	AppDatabaseName   *string `json:"app_database_name,omitempty"`
	AzureAppID        *string `json:"azure_app_id,omitempty"`
	AzureObjectID     *string `json:"azure_object_id,omitempty"`
	AzureSecretCipher *string `json:"azure_secret_cipher,omitempty"` // encrypted at rest

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAppBacked reports whether the workspace carries a custom application
// (all app_* fields set) as opposed to being kanban-only (all unset).
func (w *Workspace) IsAppBacked() bool {
	return w.AppTemplateID != nil
}

// Sandbox is an ephemeral, branch-scoped clone of a workspace's application.
type Sandbox struct {
	ID             string        `json:"id"`
	WorkspaceID    string        `json:"workspace_id"`
	Slug           string        `json:"slug"`
	FullSlug       string        `json:"full_slug"` // {workspace_slug}-{slug}
	Name           string        `json:"name"`
	SourceBranch   string        `json:"source_branch"`
	Branch         string        `json:"branch"` // sandbox/{full_slug}
	DatabaseName   string        `json:"database_name"`
	AgentContainer string        `json:"agent_container"`
	WebhookSecret  string        `json:"webhook_secret"` // 32-byte hex
	Status         SandboxStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Team is the kanban-side tenant identity, one per workspace.
type Team struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	Slug        string     `json:"slug"`
	Status      TeamStatus `json:"status"`
	DataDir     string     `json:"data_dir"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Membership binds a user to a team with a role. Unique on (TeamID, UserID).
type Membership struct {
	ID       string         `json:"id"`
	TeamID   string         `json:"team_id"`
	UserID   string         `json:"user_id"`
	Role     MembershipRole `json:"role"`
	JoinedAt time.Time      `json:"joined_at"`
}

// APIToken is an opaque bearer credential. The plaintext secret is never
// persisted; only its SHA-256 hex digest is stored, and it is returned to
// the caller exactly once, at creation.
type APIToken struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"token_hash"` // sha256(secret) hex
	Scopes     []string   `json:"scopes"`
	CreatedBy  string     `json:"created_by_user"`
	TeamID     *string    `json:"team_id,omitempty"` // nil => portal-scope, set => team-scope
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskPriority selects which per-priority queue a task is pushed onto.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityNormal TaskPriority = "normal"
)

// TaskType names one of the hard-coded pipelines the orchestrator knows how
// to run. Tasks are typed, not a general workflow engine (see Non-goals).
type TaskType string

const (
	TaskWorkspaceProvision TaskType = "workspace.provision"
	TaskWorkspaceDelete    TaskType = "workspace.delete"
	TaskWorkspaceRestart   TaskType = "workspace.restart"
	TaskWorkspaceStart     TaskType = "workspace.start"
	TaskTeamProvision      TaskType = "team.provision"
	TaskTeamDelete         TaskType = "team.delete"
	TaskTeamRestart        TaskType = "team.restart"
	TaskTeamStart          TaskType = "team.start"
	TaskSandboxProvision   TaskType = "sandbox.provision"
	TaskSandboxDelete      TaskType = "sandbox.delete"
	TaskAgentProcessCard   TaskType = "agent.process_card"
)

// TaskProgress tracks step position within a running pipeline.
type TaskProgress struct {
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	StepName    string `json:"step_name"`
	Percentage  int    `json:"percentage"`
}

// Task is the broker's unit of work: a typed envelope around a
// JSON-encoded, per-TaskType payload. Lives in C2 (the broker), not C1.
type Task struct {
	ID        string          `json:"id"`
	Type      TaskType        `json:"type"`
	Status    TaskStatus      `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	UserID    string          `json:"user_id"`
	Priority  TaskPriority    `json:"priority"`
	Progress  TaskProgress    `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TaskEvent is published on tasks:{user_id} at every step boundary and on
// terminal transitions.
type TaskEvent struct {
	Type           string          `json:"type"` // task.progress | task.completed | task.failed
	TaskID         string          `json:"task_id"`
	Step           int             `json:"step"`
	TotalSteps     int             `json:"total_steps"`
	StepName       string          `json:"step_name"`
	Percentage     int             `json:"percentage"`
	Message        string          `json:"message,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	RetryAvailable bool            `json:"retry_available,omitempty"`
}

// StatusEvent is published on team:status / workspace:status /
// sandbox:status. ResourceIDs carries the provisioned identifiers on an
// "active" transition (kanban_team_id, azure_*, github_*, webhook secret).
type StatusEvent struct {
	ID          string            `json:"id,omitempty"`
	Slug        string            `json:"slug,omitempty"`
	Status      string            `json:"status"`
	ResourceIDs map[string]string `json:"resource_ids,omitempty"`
}

// ContainerSpec describes a container to create via the runtime adapter.
type ContainerSpec struct {
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	Network       string            `json:"network"`
	Env           map[string]string `json:"env"`
	Mounts        []Mount           `json:"mounts"`
	Labels        map[string]string `json:"labels"` // gateway auto-discovery
	RestartPolicy string            `json:"restart_policy"`
}

// Mount is a host-path bind mount.
type Mount struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"read_only"`
}

// ContainerState is the observed runtime state of a container.
type ContainerState string

const (
	ContainerRunning ContainerState = "running"
	ContainerExited  ContainerState = "exited"
	ContainerDead    ContainerState = "dead"
	ContainerAbsent  ContainerState = "absent"
)

// TLSCertificate is an issued certificate cached by the TLS adapter.
type TLSCertificate struct {
	Name      string    `json:"name"`
	Hosts     []string  `json:"hosts"`
	CertPEM   []byte    `json:"cert_pem"`
	KeyPEM    []byte    `json:"key_pem"`
	Issuer    string    `json:"issuer"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
	AutoRenew bool      `json:"auto_renew"`
}

// AppRegistration is the result of the identity-provider adapter's
// create_app_registration operation.
type AppRegistration struct {
	AppID     string `json:"app_id"`
	ObjectID  string `json:"object_id"`
	Secret    string `json:"secret"`
	TenantID  string `json:"tenant_id"`
	Authority string `json:"authority"`
}
