// Package security encrypts secrets the control plane persists at rest.
//
// The only secret requiring this today is the identity-provider
// adapter's generated app-registration client secret. SecretsManager
// wraps AES-256-GCM keyed by CP_SECRETS_KEY (or an explicit 32-byte key).
package security
