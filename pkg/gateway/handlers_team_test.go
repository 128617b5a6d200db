package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTeamTestDeps(t *testing.T) *Deps {
	t.Helper()
	d := newAuthTestDeps(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	d.Broker = broker.NewWithClient(rdb)
	return d
}

// withPrincipalAndChi attaches both the authenticated principal and a chi
// route context carrying URL params, the two things a handler under test
// needs that the real router middleware would normally supply.
func withPrincipalAndChi(ctx context.Context, p Principal, rctx *chi.Context) context.Context {
	ctx = context.WithValue(ctx, principalContextKey{}, p)
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

func TestHandleDeleteTeam_RejectsNonOwner(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	team := &types.Team{ID: "team-1", WorkspaceID: "ws-1", Slug: "acme", Status: types.TeamActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateTeam(team))
	require.NoError(t, d.Store.CreateMembership(&types.Membership{ID: "m-1", TeamID: team.ID, UserID: "user-member", Role: types.RoleMember, JoinedAt: now}))

	req := httptest.NewRequest(http.MethodDelete, "/api/teams/acme", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-member"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleDeleteTeam(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleDeleteTeam_AllowsOwner(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	team := &types.Team{ID: "team-2", WorkspaceID: "ws-1", Slug: "acme", Status: types.TeamActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateTeam(team))
	require.NoError(t, d.Store.CreateMembership(&types.Membership{ID: "m-2", TeamID: team.ID, UserID: "user-owner", Role: types.RoleOwner, JoinedAt: now}))

	req := httptest.NewRequest(http.MethodDelete, "/api/teams/acme", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-owner"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleDeleteTeam(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleRemoveMember_RejectsRemovingOwner(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	team := &types.Team{ID: "team-3", WorkspaceID: "ws-1", Slug: "acme", Status: types.TeamActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateTeam(team))
	require.NoError(t, d.Store.CreateMembership(&types.Membership{ID: "m-3", TeamID: team.ID, UserID: "user-owner", Role: types.RoleOwner, JoinedAt: now}))
	require.NoError(t, d.Store.CreateMembership(&types.Membership{ID: "m-4", TeamID: team.ID, UserID: "user-admin", Role: types.RoleAdmin, JoinedAt: now}))

	req := httptest.NewRequest(http.MethodDelete, "/api/teams/acme/members/user-owner", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	rctx.URLParams.Add("user_id", "user-owner")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-admin"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleRemoveMember(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	memberships, err := d.Store.ListMembershipsByTeam(team.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)
}

func TestHandleRemoveMember_AllowsAdminToRemoveMember(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	team := &types.Team{ID: "team-4", WorkspaceID: "ws-1", Slug: "acme", Status: types.TeamActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateTeam(team))
	require.NoError(t, d.Store.CreateMembership(&types.Membership{ID: "m-5", TeamID: team.ID, UserID: "user-admin", Role: types.RoleAdmin, JoinedAt: now}))
	require.NoError(t, d.Store.CreateMembership(&types.Membership{ID: "m-6", TeamID: team.ID, UserID: "user-member", Role: types.RoleMember, JoinedAt: now}))

	req := httptest.NewRequest(http.MethodDelete, "/api/teams/acme/members/user-member", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	rctx.URLParams.Add("user_id", "user-member")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-admin"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleRemoveMember(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	memberships, err := d.Store.ListMembershipsByTeam(team.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
}
