package tls

import (
	"context"
	"testing"
)

func TestIssueSelfSignedAndCache(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)

	cert, err := a.Issue(context.Background(), "team", "acme.kanban.local")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if cert.Name != "acme.kanban.local" {
		t.Fatalf("unexpected cert name: %s", cert.Name)
	}
	if !a.CheckExists("acme.kanban.local") {
		t.Fatalf("expected cert to be cached on disk")
	}

	// Re-issuing should reuse the cached cert rather than regenerate.
	cert2, err := a.Issue(context.Background(), "team", "acme.kanban.local")
	if err != nil {
		t.Fatalf("re-issue: %v", err)
	}
	if string(cert.CertPEM) != string(cert2.CertPEM) {
		t.Fatalf("expected cached certificate to be reused")
	}
}

func TestRevokeRemovesCache(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)

	if _, err := a.Issue(context.Background(), "sandbox", "shop-feat-x.sandbox.kanban.local"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := a.Revoke("shop-feat-x.sandbox.kanban.local"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if a.CheckExists("shop-feat-x.sandbox.kanban.local") {
		t.Fatalf("expected cert to be gone after revoke")
	}
}
