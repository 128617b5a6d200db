// Package identity is the identity-provider adapter (C3): Azure Entra
// External ID (CIAM) app-registration management via Microsoft Graph.
package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/kanbanhq/controlplane/pkg/apierr"
	"github.com/kanbanhq/controlplane/pkg/types"
)

const graphBase = "https://graph.microsoft.com/v1.0"

// Adapter drives Microsoft Graph on behalf of a client-credentials
// service principal to manage per-workspace/sandbox app registrations.
type Adapter struct {
	cred      *azidentity.ClientSecretCredential
	tenantID  string
	authority string
	http      *http.Client
}

// New builds an adapter authenticating as (tenantID, clientID,
// clientSecret). authority is the CIAM authority URL returned to callers
// alongside each app registration (e.g.
// "https://{domain}.ciamlogin.com/{tenantID}").
func New(tenantID, clientID, clientSecret, authority string) (*Adapter, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, apierr.Fatal("build azure credential", err)
	}
	return &Adapter{
		cred:      cred,
		tenantID:  tenantID,
		authority: authority,
		http:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	tok, err := a.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{"https://graph.microsoft.com/.default"},
	})
	if err != nil {
		return "", apierr.Transient("acquire graph token", err)
	}
	return tok.Token, nil
}

func (a *Adapter) graphRequest(ctx context.Context, method, path string, body any) (int, map[string]any, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return 0, nil, err
	}

	var reqBody bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, apierr.Fatal("marshal graph request body", err)
		}
		reqBody = *bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, graphBase+path, &reqBody)
	if err != nil {
		return 0, nil, apierr.Fatal("build graph request", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, nil, apierr.Transient("graph api request", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded, nil
}

// CreateAppRegistration creates the application, its service principal,
// and a long-lived client secret (bounded retries tolerate Graph's
// eventual-consistency propagation lag on addPassword).
func (a *Adapter) CreateAppRegistration(ctx context.Context, displayName string, redirectURIs []string) (*types.AppRegistration, error) {
	status, app, err := a.graphRequest(ctx, http.MethodPost, "/applications", map[string]any{
		"displayName": displayName,
		"web":         map[string]any{"redirectUris": redirectURIs},
	})
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, apierr.Permanent(fmt.Sprintf("create app registration %s: graph status %d", displayName, status), nil)
	}
	appID, _ := app["appId"].(string)
	objectID, _ := app["id"].(string)

	// Service principals must exist before the app is usable; wait briefly
	// for the application object to propagate first.
	time.Sleep(2 * time.Second)
	if _, _, err := a.graphRequest(ctx, http.MethodPost, "/servicePrincipals", map[string]any{"appId": appID}); err != nil {
		return nil, err
	}

	secret, err := a.addPasswordWithRetry(ctx, objectID, displayName)
	if err != nil {
		return nil, err
	}

	return &types.AppRegistration{
		AppID:     appID,
		ObjectID:  objectID,
		Secret:    secret,
		TenantID:  a.tenantID,
		Authority: a.authority,
	}, nil
}

func (a *Adapter) addPasswordWithRetry(ctx context.Context, objectID, label string) (string, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		status, data, err := a.graphRequest(ctx, http.MethodPost, fmt.Sprintf("/applications/%s/addPassword", objectID), map[string]any{
			"passwordCredential": map[string]any{"displayName": label},
		})
		if err != nil {
			lastErr = err
		} else if status == http.StatusOK {
			secret, _ := data["secretText"].(string)
			return secret, nil
		} else {
			lastErr = apierr.Transient(fmt.Sprintf("addPassword graph status %d", status), nil)
		}
		time.Sleep(2 * time.Second)
	}
	return "", apierr.Transient(fmt.Sprintf("failed to create client secret for %s after %d attempts", objectID, maxAttempts), lastErr)
}

// UpdateRedirectURIs replaces the redirect URI list on an app
// registration — used to add a new sandbox FQDN's OAuth callback path
// without disturbing existing ones.
func (a *Adapter) UpdateRedirectURIs(ctx context.Context, objectID string, redirectURIs []string) error {
	status, _, err := a.graphRequest(ctx, http.MethodPatch, "/applications/"+objectID, map[string]any{
		"web": map[string]any{"redirectUris": redirectURIs},
	})
	if err != nil {
		return err
	}
	if status >= 300 {
		return apierr.Permanent(fmt.Sprintf("update redirect uris for %s: graph status %d", objectID, status), nil)
	}
	return nil
}

// Delete removes the app registration. No-op if already absent.
func (a *Adapter) Delete(ctx context.Context, objectID string) error {
	status, _, err := a.graphRequest(ctx, http.MethodDelete, "/applications/"+objectID, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return apierr.Permanent(fmt.Sprintf("delete app registration %s: graph status %d", objectID, status), nil)
	}
	return nil
}

// GenerateWebhookSecret returns a fresh 32-byte hex secret, used both for
// sandbox agent webhooks and anywhere else a random
// shared secret is needed.
func GenerateWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", apierr.Fatal("generate webhook secret", err)
	}
	return hex.EncodeToString(buf), nil
}
