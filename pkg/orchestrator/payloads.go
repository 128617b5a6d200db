package orchestrator

// Payload shapes for every TaskType the dispatcher knows how to run. Each is
// marshaled into Task.Payload by the caller that enqueues the task and
// unmarshaled by dispatch.go before a pipeline's steps are built.

type WorkspaceProvisionPayload struct {
	WorkspaceID   string  `json:"workspace_id"`
	Slug          string  `json:"slug"`
	Name          string  `json:"name"`
	OwnerUserID   string  `json:"owner_user_id"`
	AppTemplateID *string `json:"app_template_id,omitempty"`
	SourceBranch  string  `json:"source_branch,omitempty"`
}

type WorkspaceDeletePayload struct {
	WorkspaceID string `json:"workspace_id"`
	Slug        string `json:"slug"`
}

type WorkspaceRestartPayload struct {
	WorkspaceID string `json:"workspace_id"`
	Slug        string `json:"slug"`
	Rebuild     bool   `json:"rebuild"`
}

type TeamProvisionPayload struct {
	TeamID   string `json:"team_id"`
	TeamSlug string `json:"team_slug"`
}

type TeamDeletePayload struct {
	TeamID   string `json:"team_id"`
	TeamSlug string `json:"team_slug"`
}

type TeamRestartPayload struct {
	TeamID   string `json:"team_id"`
	TeamSlug string `json:"team_slug"`
	Rebuild  bool   `json:"rebuild"`
}

type SandboxProvisionPayload struct {
	SandboxID    string `json:"sandbox_id"`
	WorkspaceID  string `json:"workspace_id"`
	WorkspaceSlug string `json:"workspace_slug"`
	Slug         string `json:"slug"`
	FullSlug     string `json:"full_slug"`
	SourceBranch string `json:"source_branch"`
}

type SandboxDeletePayload struct {
	SandboxID string `json:"sandbox_id"`
	FullSlug  string `json:"full_slug"`
}

// AgentProcessCardPayload carries everything the agent dispatch pipeline
// needs without re-querying the tenant, since the webhook that enqueues it
// only has the card snapshot delivered in the request body.
type AgentProcessCardPayload struct {
	WorkspaceSlug string            `json:"workspace_slug"`
	SandboxID     string            `json:"sandbox_id,omitempty"`
	CardID        string            `json:"card_id"`
	CardTitle     string            `json:"card_title"`
	CardDesc      string            `json:"card_description"`
	Labels        []string          `json:"labels"`
	Checklist     []ChecklistItem   `json:"checklist"`
	RecentComments []Comment        `json:"recent_comments"`
	ColumnName    string            `json:"column_name"`
	APIBaseURL    string            `json:"api_base_url"`
	WorkDir       string            `json:"work_dir,omitempty"`
}

type ChecklistItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type Comment struct {
	AuthorName string `json:"author_name"`
	CreatedAt  string `json:"created_at"`
	Text       string `json:"text"`
}
