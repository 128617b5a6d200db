package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/kanbanhq/controlplane/pkg/config"
	"github.com/kanbanhq/controlplane/pkg/store"
	"github.com/kanbanhq/controlplane/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestDeps(t *testing.T) *Deps {
	t.Helper()
	dir, err := os.MkdirTemp("", "controlplane-gateway-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &Deps{Store: s, Config: &config.Config{JWTSecret: "test-secret"}}
}

// HasScope rules: "*" grants everything, an exact match passes, and
// "{category}:*" passes for any required scope sharing that category
// prefix.
func TestPrincipalHasScope(t *testing.T) {
	cases := []struct {
		name     string
		scopes   []string
		required string
		want     bool
	}{
		{"wildcard grants anything", []string{"*"}, "teams:write", true},
		{"exact match", []string{"teams:read"}, "teams:read", true},
		{"category wildcard", []string{"teams:*"}, "teams:write", true},
		{"no match", []string{"teams:read"}, "teams:write", false},
		{"different category", []string{"workspaces:*"}, "teams:read", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Principal{Scopes: tc.scopes}
			assert.Equal(t, tc.want, p.HasScope(tc.required))
		})
	}
}

// Scope enforcement: an API token scoped to
// teams:read is rejected with 403 naming teams:write for a write
// endpoint, and accepted for a read endpoint.
func TestRequireScope_APITokenScopeEnforcement(t *testing.T) {
	d := newAuthTestDeps(t)

	secret := "plaintext-secret-value"
	sum := sha256.Sum256([]byte(secret))
	tok := &types.APIToken{
		ID:        "tok-1",
		Name:      "ci",
		TokenHash: hex.EncodeToString(sum[:]),
		Scopes:    []string{"teams:read"},
		CreatedBy: "user-1",
		Active:    true,
	}
	require.NoError(t, d.Store.CreateAPIToken(tok))

	readHandler := d.requireScope("teams:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	writeHandler := d.requireScope("teams:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	readReq := httptest.NewRequest(http.MethodGet, "/api/teams", nil)
	readReq.Header.Set("Authorization", "Bearer pk_"+secret)
	readRec := httptest.NewRecorder()
	readHandler.ServeHTTP(readRec, readReq)
	assert.Equal(t, http.StatusOK, readRec.Code)

	writeReq := httptest.NewRequest(http.MethodPost, "/api/teams", nil)
	writeReq.Header.Set("Authorization", "Bearer pk_"+secret)
	writeRec := httptest.NewRecorder()
	writeHandler.ServeHTTP(writeRec, writeReq)
	assert.Equal(t, http.StatusForbidden, writeRec.Code)
	assert.Contains(t, writeRec.Body.String(), "teams:write")
}

func TestRequireScope_MissingCredential(t *testing.T) {
	d := newAuthTestDeps(t)
	h := d.requireScope("teams:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/teams", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope_RevokedAPIToken(t *testing.T) {
	d := newAuthTestDeps(t)
	secret := "another-secret"
	sum := sha256.Sum256([]byte(secret))
	tok := &types.APIToken{
		ID:        "tok-2",
		TokenHash: hex.EncodeToString(sum[:]),
		Scopes:    []string{"*"},
		Active:    false,
	}
	require.NoError(t, d.Store.CreateAPIToken(tok))

	h := d.requireScope("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer pk_"+secret)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
