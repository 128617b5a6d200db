package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/orchestrator"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// HandleListWorkspaces lists every workspace owned by the authenticated
// user.
func (d *Deps) HandleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	workspaces, err := d.Store.ListWorkspacesByOwner(principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workspaces)
}

// HandleCreateWorkspace validates the request, writes the initial C1 row
// in "provisioning" status, and enqueues workspace.provision.
func (d *Deps) HandleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var body struct {
		Slug          string  `json:"slug"`
		Name          string  `json:"name"`
		AppTemplateID *string `json:"app_template_id,omitempty"`
		SourceBranch  string  `json:"source_branch,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Validation("malformed request body"))
		return
	}
	if err := store.ValidateSlug(body.Slug, d.Config.ReservedSlugs); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	ws := &types.Workspace{
		ID:            uuid.NewString(),
		Slug:          body.Slug,
		Name:          body.Name,
		OwnerUserID:   principal.UserID,
		Status:        types.WorkspaceProvisioning,
		AppTemplateID: body.AppTemplateID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.Store.CreateWorkspace(ws); err != nil {
		writeError(w, err)
		return
	}

	payload := orchestrator.WorkspaceProvisionPayload{
		WorkspaceID:   ws.ID,
		Slug:          ws.Slug,
		Name:          ws.Name,
		OwnerUserID:   ws.OwnerUserID,
		AppTemplateID: ws.AppTemplateID,
		SourceBranch:  body.SourceBranch,
	}
	if _, err := d.Broker.Enqueue(r.Context(), "provisioning", types.TaskWorkspaceProvision, payload, principal.UserID, types.PriorityNormal); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ws)
}

// HandleGetWorkspace returns a workspace by slug.
func (d *Deps) HandleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := d.Store.GetWorkspaceBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// HandleWorkspaceStatus returns just the workspace's current status, the
// narrow read path auto-start-aware UIs poll while waiting for a
// transition.
func (d *Deps) HandleWorkspaceStatus(w http.ResponseWriter, r *http.Request) {
	ws, err := d.Store.GetWorkspaceBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"slug": ws.Slug, "status": string(ws.Status)})
}

// HandleListSandboxes lists every sandbox under a workspace.
func (d *Deps) HandleListSandboxes(w http.ResponseWriter, r *http.Request) {
	ws, err := d.Store.GetWorkspaceBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	sandboxes, err := d.Store.ListSandboxesByWorkspace(ws.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sandboxes)
}

// HandleCreateSandbox validates the request, writes the initial C1 row,
// and enqueues sandbox.provision.
func (d *Deps) HandleCreateSandbox(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	ws, err := d.Store.GetWorkspaceBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ws.Status != types.WorkspaceActive {
		writeError(w, apierr.Validationf("workspace %s is not active (status=%s)", ws.Slug, ws.Status))
		return
	}

	var body struct {
		Name         string `json:"name"`
		Slug         string `json:"slug"`
		SourceBranch string `json:"source_branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Validation("malformed request body"))
		return
	}
	if err := store.ValidateSlug(body.Slug, d.Config.ReservedSlugs); err != nil {
		writeError(w, err)
		return
	}

	fullSlug := ws.Slug + "-" + body.Slug
	now := time.Now().UTC()
	sb := &types.Sandbox{
		ID:           uuid.NewString(),
		WorkspaceID:  ws.ID,
		Slug:         body.Slug,
		FullSlug:     fullSlug,
		Name:         body.Name,
		SourceBranch: body.SourceBranch,
		Status:       types.SandboxProvisioning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.Store.CreateSandbox(sb); err != nil {
		writeError(w, err)
		return
	}

	payload := orchestrator.SandboxProvisionPayload{
		SandboxID:     sb.ID,
		WorkspaceID:   ws.ID,
		WorkspaceSlug: ws.Slug,
		Slug:          sb.Slug,
		FullSlug:      fullSlug,
		SourceBranch:  body.SourceBranch,
	}
	if _, err := d.Broker.Enqueue(r.Context(), "provisioning", types.TaskSandboxProvision, payload, principal.UserID, types.PriorityNormal); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, sb)
}

// HandleDeleteWorkspace enqueues workspace.delete, tearing down the
// workspace and everything nested under it (team, sandboxes). Only the
// workspace's owner may delete it.
func (d *Deps) HandleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	ws, err := d.Store.GetWorkspaceBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ws.OwnerUserID != principal.UserID {
		writeError(w, apierr.Forbidden("workspace owner"))
		return
	}

	payload := orchestrator.WorkspaceDeletePayload{WorkspaceID: ws.ID, Slug: ws.Slug}
	if _, err := d.Broker.Enqueue(r.Context(), "provisioning", types.TaskWorkspaceDelete, payload, principal.UserID, types.PriorityNormal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delete queued"})
}

// HandleDeleteSandbox enqueues sandbox.delete for one sandbox under a
// workspace.
func (d *Deps) HandleDeleteSandbox(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	ws, err := d.Store.GetWorkspaceBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}

	sandboxSlug := chi.URLParam(r, "sandbox_slug")
	sandboxes, err := d.Store.ListSandboxesByWorkspace(ws.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	var sb *types.Sandbox
	for _, candidate := range sandboxes {
		if candidate.Slug == sandboxSlug {
			sb = candidate
			break
		}
	}
	if sb == nil {
		writeError(w, apierr.Validationf("no sandbox %q under workspace %s", sandboxSlug, ws.Slug))
		return
	}

	payload := struct {
		SandboxID     string `json:"sandbox_id"`
		WorkspaceSlug string `json:"workspace_slug"`
		FullSlug      string `json:"full_slug"`
		Branch        string `json:"branch"`
		DatabaseName  string `json:"database_name"`
	}{
		SandboxID:     sb.ID,
		WorkspaceSlug: ws.Slug,
		FullSlug:      sb.FullSlug,
		Branch:        sb.Branch,
		DatabaseName:  sb.DatabaseName,
	}
	if _, err := d.Broker.Enqueue(r.Context(), "provisioning", types.TaskSandboxDelete, payload, principal.UserID, types.PriorityNormal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delete queued"})
}
