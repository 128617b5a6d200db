package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kanbanhq/controlplane/pkg/apierr"
)

// opaqueTokenPrefix marks a bearer credential as an API token rather than a
// portal session JWT.
const opaqueTokenPrefix = "pk_"

// sessionClaims is the payload of a portal session JWT minted at
// /auth/callback and /auth/exchange.
type sessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Principal is the authenticated identity and scope set attached to a
// request's context.
type Principal struct {
	UserID string
	Scopes []string
}

// HasScope reports whether the principal's scopes satisfy required: "*"
// grants everything, an exact match passes, and "{category}:*" passes for
// any required scope sharing that category prefix.
func (p Principal) HasScope(required string) bool {
	category := required
	if i := strings.IndexByte(required, ':'); i >= 0 {
		category = required[:i]
	}
	for _, s := range p.Scopes {
		if s == "*" || s == required || s == category+":*" {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// PrincipalFromContext recovers the Principal an auth middleware attached
// to the request context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// mintSessionJWT signs a portal session token for userID, valid for 24h.
func mintSessionJWT(secret, userID string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}

// authenticate validates the request's Bearer credential and returns the
// resulting Principal. JWT users carry implicit "*" scope; API-token users
// carry their token's recorded scopes.
func (d *Deps) authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		return Principal{}, apierr.Unauthenticated("missing bearer credential")
	}
	raw := strings.TrimPrefix(header, bearerPrefix)

	if strings.HasPrefix(raw, opaqueTokenPrefix) {
		return d.authenticateAPIToken(raw)
	}
	return d.authenticateJWT(raw)
}

func (d *Deps) authenticateJWT(raw string) (Principal, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierr.Unauthenticated("unexpected signing method")
		}
		return []byte(d.Config.JWTSecret), nil
	})
	if err != nil {
		return Principal{}, apierr.Unauthenticated("invalid or expired session token")
	}
	return Principal{UserID: claims.UserID, Scopes: []string{"*"}}, nil
}

func (d *Deps) authenticateAPIToken(raw string) (Principal, error) {
	secret := strings.TrimPrefix(raw, opaqueTokenPrefix)
	sum := sha256.Sum256([]byte(secret))
	hash := hex.EncodeToString(sum[:])

	tok, err := d.Store.GetAPITokenByHash(hash)
	if err != nil {
		return Principal{}, apierr.Unauthenticated("unknown api token")
	}
	if !tok.Active {
		return Principal{}, apierr.Unauthenticated("api token revoked")
	}
	if tok.ExpiresAt != nil && tok.ExpiresAt.Before(time.Now()) {
		return Principal{}, apierr.Unauthenticated("api token expired")
	}

	tok.LastUsedAt = timePtr(time.Now().UTC())
	_ = d.Store.UpdateAPIToken(tok)

	return Principal{UserID: tok.CreatedBy, Scopes: tok.Scopes}, nil
}

func timePtr(t time.Time) *time.Time { return &t }

// requireScope returns net/http middleware that authenticates the request
// and rejects it unless the resulting Principal has the required scope.
// Passing an empty scope authenticates without any additional scope check,
// for endpoints open to any credential (e.g. GET /users/me).
func (d *Deps) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := d.authenticate(r)
			if err != nil {
				writeError(w, err)
				return
			}
			if scope != "" && !principal.HasScope(scope) {
				writeError(w, apierr.Forbidden(scope))
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError maps an apierr category to its HTTP status and writes a JSON
// body carrying the detail message.
func writeError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"detail":` + jsonString(err.Error()) + `}`))
}

func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
