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

// HandleListTeams lists every team.
func (d *Deps) HandleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := d.Store.ListTeams()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

// HandleCreateTeam validates the request, writes the initial C1 row, and
// enqueues team.provision.
func (d *Deps) HandleCreateTeam(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var body struct {
		Slug        string `json:"slug"`
		WorkspaceID string `json:"workspace_id"`
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
	team := &types.Team{
		ID:          uuid.NewString(),
		WorkspaceID: body.WorkspaceID,
		Slug:        body.Slug,
		Status:      types.TeamProvisioning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.Store.CreateTeam(team); err != nil {
		writeError(w, err)
		return
	}

	payload := orchestrator.TeamProvisionPayload{TeamID: team.ID, TeamSlug: team.Slug}
	if _, err := d.Broker.Enqueue(r.Context(), "provisioning", types.TaskTeamProvision, payload, principal.UserID, types.PriorityNormal); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, team)
}

// HandleGetTeam returns a team by slug.
func (d *Deps) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := d.Store.GetTeamBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// HandleRestartTeam enqueues team.restart with the request's rebuild flag.
// Requires an admin or owner membership on the team, enforced by the
// caller's membership role rather than the token scope model. The
// credential type is not checked: an API token whose user holds such a
// membership is accepted as well as a JWT session.
func (d *Deps) HandleRestartTeam(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	team, err := d.Store.GetTeamBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := d.requireTeamAdmin(principal, team.ID); err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Rebuild bool `json:"rebuild"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	payload := orchestrator.TeamRestartPayload{TeamID: team.ID, TeamSlug: team.Slug, Rebuild: body.Rebuild}
	if _, err := d.Broker.Enqueue(r.Context(), "provisioning", types.TaskTeamRestart, payload, principal.UserID, types.PriorityNormal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restart queued"})
}

// HandleDeleteTeam enqueues team.delete. Only the team's owner may delete
// it.
func (d *Deps) HandleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	team, err := d.Store.GetTeamBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	membership, err := d.Store.GetMembership(team.ID, principal.UserID)
	if err != nil || membership.Role != types.RoleOwner {
		writeError(w, apierr.Forbidden("team owner role"))
		return
	}

	payload := orchestrator.TeamDeletePayload{TeamID: team.ID, TeamSlug: team.Slug}
	if _, err := d.Broker.Enqueue(r.Context(), "provisioning", types.TaskTeamDelete, payload, principal.UserID, types.PriorityNormal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "delete queued"})
}

// HandleRemoveMember removes a member from a team. The caller must be an
// admin or owner, and the team's owner can never be removed this way:
// ownership transfers, it doesn't get deleted out from under a team.
func (d *Deps) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	team, err := d.Store.GetTeamBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := d.requireTeamAdmin(principal, team.ID); err != nil {
		writeError(w, err)
		return
	}

	userID := chi.URLParam(r, "user_id")
	target, err := d.Store.GetMembership(team.ID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if target.Role == types.RoleOwner {
		writeError(w, apierr.Validation("cannot remove the team owner"))
		return
	}

	if err := d.Store.DeleteMembership(team.ID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "member removed"})
}

func (d *Deps) requireTeamAdmin(principal Principal, teamID string) error {
	membership, err := d.Store.GetMembership(teamID, principal.UserID)
	if err != nil {
		return apierr.Forbidden("team admin role")
	}
	if membership.Role != types.RoleAdmin && membership.Role != types.RoleOwner {
		return apierr.Forbidden("team admin role")
	}
	return nil
}

// HandleListMembers lists a team's memberships.
func (d *Deps) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	team, err := d.Store.GetTeamBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	members, err := d.Store.ListMembershipsByTeam(team.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// HandleAddMember adds a user to a team with a role.
func (d *Deps) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	team, err := d.Store.GetTeamBySlug(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		UserID string              `json:"user_id"`
		Role   types.MembershipRole `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Validation("malformed request body"))
		return
	}

	membership := &types.Membership{
		ID:       uuid.NewString(),
		TeamID:   team.ID,
		UserID:   body.UserID,
		Role:     body.Role,
		JoinedAt: time.Now().UTC(),
	}
	if err := d.Store.CreateMembership(membership); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}
