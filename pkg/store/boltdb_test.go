package store

import (
	"os"
	"testing"

	"github.com/kanbanhq/controlplane/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "controlplane-store-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserUpsertFromExternalIdentity(t *testing.T) {
	s := newTestStore(t)

	u, err := s.UpsertUserFromExternalIdentity("sub-1", "Person@Example.com", "Person")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.Email != "person@example.com" {
		t.Fatalf("expected case-folded email, got %q", u.Email)
	}
	firstLogin := u.LastLoginAt

	u2, err := s.UpsertUserFromExternalIdentity("sub-1", "person@example.com", "Person")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if u2.ID != u.ID {
		t.Fatalf("upsert created a second user: %s != %s", u2.ID, u.ID)
	}
	if !u2.LastLoginAt.After(firstLogin) && u2.LastLoginAt != firstLogin {
		t.Fatalf("expected last_login_at to be refreshed")
	}
}

func TestWorkspaceSlugUniqueness(t *testing.T) {
	s := newTestStore(t)

	w1 := &types.Workspace{Slug: "acme", Name: "Acme", OwnerUserID: "u1", Status: types.WorkspaceProvisioning}
	if err := s.CreateWorkspace(w1); err != nil {
		t.Fatalf("create first: %v", err)
	}

	w2 := &types.Workspace{Slug: "acme", Name: "Acme 2", OwnerUserID: "u2", Status: types.WorkspaceProvisioning}
	if err := s.CreateWorkspace(w2); err == nil {
		t.Fatalf("expected conflict on duplicate slug")
	}
}

func TestMembershipUniqueness(t *testing.T) {
	s := newTestStore(t)
	m1 := &types.Membership{TeamID: "t1", UserID: "u1", Role: types.RoleOwner}
	if err := s.CreateMembership(m1); err != nil {
		t.Fatalf("create first: %v", err)
	}
	m2 := &types.Membership{TeamID: "t1", UserID: "u1", Role: types.RoleMember}
	if err := s.CreateMembership(m2); err == nil {
		t.Fatalf("expected conflict on duplicate membership")
	}

	found, err := s.GetMembership("t1", "u1")
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if found.Role != types.RoleOwner {
		t.Fatalf("expected role owner, got %s", found.Role)
	}
}

func TestSandboxFullSlugScopedToWorkspace(t *testing.T) {
	s := newTestStore(t)
	sb := &types.Sandbox{WorkspaceID: "w1", Slug: "feat-x", FullSlug: "shop-feat-x", Status: types.SandboxProvisioning}
	if err := s.CreateSandbox(sb); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetSandboxByFullSlug("shop-feat-x")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.WorkspaceID != "w1" {
		t.Fatalf("expected workspace w1, got %s", got.WorkspaceID)
	}
}

func TestDeleteUserRevokesTokens(t *testing.T) {
	s := newTestStore(t)
	tok := &types.APIToken{Name: "ci", TokenHash: "abc", CreatedBy: "u1", Active: true}
	if err := s.CreateAPIToken(tok); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := s.DeleteUser("u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	got, err := s.GetAPIToken(tok.ID)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got.Active {
		t.Fatalf("expected token to be revoked after owner deletion")
	}
}

func TestValidateSlug(t *testing.T) {
	cases := []struct {
		slug string
		ok   bool
	}{
		{"ab", false},
		{"abc", true},
		{"app", false},
		{"Acme", false},
		{"acme-shop", true},
	}
	for _, c := range cases {
		err := ValidateSlug(c.slug, DefaultReservedSlugsForTest)
		if c.ok && err != nil {
			t.Errorf("slug %q: expected ok, got %v", c.slug, err)
		}
		if !c.ok && err == nil {
			t.Errorf("slug %q: expected error, got nil", c.slug)
		}
	}
}

var DefaultReservedSlugsForTest = []string{"app", "api", "www", "mail", "admin", "portal", "static", "assets", "sandbox"}
