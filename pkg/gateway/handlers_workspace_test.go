package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestHandleDeleteWorkspace_RejectsNonOwner(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	ws := &types.Workspace{ID: "ws-1", Slug: "acme", Name: "Acme", OwnerUserID: "user-owner", Status: types.WorkspaceActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateWorkspace(ws))

	req := httptest.NewRequest(http.MethodDelete, "/api/workspaces/acme", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-other"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleDeleteWorkspace(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleDeleteWorkspace_AllowsOwner(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	ws := &types.Workspace{ID: "ws-2", Slug: "acme", Name: "Acme", OwnerUserID: "user-owner", Status: types.WorkspaceActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateWorkspace(ws))

	req := httptest.NewRequest(http.MethodDelete, "/api/workspaces/acme", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-owner"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleDeleteWorkspace(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleDeleteSandbox_EnqueuesDeleteTaskForMatchingSlug(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	ws := &types.Workspace{ID: "ws-3", Slug: "acme", Name: "Acme", OwnerUserID: "user-owner", Status: types.WorkspaceActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateWorkspace(ws))
	sb := &types.Sandbox{
		ID: "sb-1", WorkspaceID: ws.ID, Slug: "feature-x", FullSlug: "acme-feature-x",
		Branch: "sandbox/acme-feature-x", DatabaseName: "acme_feature_x", Status: types.SandboxActive,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, d.Store.CreateSandbox(sb))

	req := httptest.NewRequest(http.MethodDelete, "/api/workspaces/acme/sandboxes/feature-x", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	rctx.URLParams.Add("sandbox_slug", "feature-x")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-owner"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleDeleteSandbox(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleDeleteSandbox_UnknownSlugIsValidationError(t *testing.T) {
	d := newTeamTestDeps(t)

	now := time.Now().UTC()
	ws := &types.Workspace{ID: "ws-4", Slug: "acme", Name: "Acme", OwnerUserID: "user-owner", Status: types.WorkspaceActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, d.Store.CreateWorkspace(ws))

	req := httptest.NewRequest(http.MethodDelete, "/api/workspaces/acme/sandboxes/nonexistent", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("slug", "acme")
	rctx.URLParams.Add("sandbox_slug", "nonexistent")
	req = req.WithContext(withPrincipalAndChi(req.Context(), Principal{UserID: "user-owner"}, rctx))
	rec := httptest.NewRecorder()

	d.HandleDeleteSandbox(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
