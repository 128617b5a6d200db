package gateway

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
)

// HandleListTokens lists the authenticated user's API tokens. Only
// metadata is returned; the plaintext secret was shown once, at creation.
func (d *Deps) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	tokens, err := d.Store.ListAPITokensByUser(principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// HandleCreateToken mints a fresh opaque bearer credential, persists only
// its SHA-256 hash, and returns the plaintext secret exactly once.
func (d *Deps) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var body struct {
		Name      string     `json:"name"`
		Scopes    []string   `json:"scopes"`
		TeamID    *string    `json:"team_id,omitempty"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.Validation("malformed request body"))
		return
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		writeError(w, apierr.Fatal("generate token secret", err))
		return
	}
	secret := opaqueTokenPrefix + hex.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret[len(opaqueTokenPrefix):]))

	now := time.Now().UTC()
	tok := &types.APIToken{
		ID:        uuid.NewString(),
		Name:      body.Name,
		TokenHash: hex.EncodeToString(sum[:]),
		Scopes:    body.Scopes,
		CreatedBy: principal.UserID,
		TeamID:    body.TeamID,
		ExpiresAt: body.ExpiresAt,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.Store.CreateAPIToken(tok); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"token": tok, "secret": secret})
}

// HandleDeleteToken revokes a token by id.
func (d *Deps) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.DeleteAPIToken(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
