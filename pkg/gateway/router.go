package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the gateway's full HTTP surface: the portal REST API
// under /api, the tenant webhook endpoint, and a catch-all that proxies
// everything else to the resolved tenant. One constructor wires chi
// middleware plus a flat route table, rather than a router struct with
// deferred registration.
func NewRouter(d *Deps, limiter *RateLimiter, access AccessControl) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Use(access.Middleware)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", d.HandleAuthLogin)
		api.Get("/auth/callback", d.HandleAuthCallback)
		api.Post("/auth/exchange", d.HandleAuthExchange)

		api.Group(func(me chi.Router) {
			me.Use(d.requireScope(""))
			me.Get("/users/me", d.HandleUsersMe)
			me.Put("/users/me", d.HandleUsersMe)
		})

		api.Group(func(ws chi.Router) {
			ws.Use(d.requireScope("workspaces:read"))
			ws.Get("/workspaces", d.HandleListWorkspaces)
			ws.Get("/workspaces/{slug}", d.HandleGetWorkspace)
			ws.Get("/workspaces/{slug}/status", d.HandleWorkspaceStatus)
		})
		api.Group(func(ws chi.Router) {
			ws.Use(d.requireScope("workspaces:write"))
			ws.Post("/workspaces", d.HandleCreateWorkspace)
			ws.Delete("/workspaces/{slug}", d.HandleDeleteWorkspace)
		})

		api.Group(func(sb chi.Router) {
			sb.Use(d.requireScope("sandboxes:read"))
			sb.Get("/workspaces/{slug}/sandboxes", d.HandleListSandboxes)
		})
		api.Group(func(sb chi.Router) {
			sb.Use(d.requireScope("sandboxes:write"))
			sb.Post("/workspaces/{slug}/sandboxes", d.HandleCreateSandbox)
			sb.Delete("/workspaces/{slug}/sandboxes/{sandbox_slug}", d.HandleDeleteSandbox)
		})

		api.Group(func(t chi.Router) {
			t.Use(d.requireScope("teams:read"))
			t.Get("/teams", d.HandleListTeams)
			t.Get("/teams/{slug}", d.HandleGetTeam)
			t.Get("/teams/{slug}/members", d.HandleListMembers)
		})
		api.Group(func(t chi.Router) {
			t.Use(d.requireScope("teams:write"))
			t.Post("/teams", d.HandleCreateTeam)
			t.Post("/teams/{slug}/members", d.HandleAddMember)
		})
		api.Group(func(t chi.Router) {
			// HandleRestartTeam, HandleDeleteTeam, and HandleRemoveMember
			// each enforce their own membership-role check; authenticate
			// only here.
			t.Use(d.requireScope(""))
			t.Post("/teams/{slug}/restart", d.HandleRestartTeam)
			t.Delete("/teams/{slug}", d.HandleDeleteTeam)
			t.Delete("/teams/{slug}/members/{user_id}", d.HandleRemoveMember)
		})

		api.Group(func(pt chi.Router) {
			pt.Use(d.requireScope(""))
			pt.Get("/portal/tokens", d.HandleListTokens)
			pt.Post("/portal/tokens", d.HandleCreateToken)
			pt.Delete("/portal/tokens/{id}", d.HandleDeleteToken)

			pt.Post("/tasks/{id}/retry", d.HandleRetryTask)
			pt.Post("/tasks/{id}/cancel", d.HandleCancelTask)
			pt.Get("/tasks/ws", d.HandleTaskStream)
		})

		api.Post("/webhook", d.HandleWebhook)
	})

	// Everything else is tenant-bound traffic: resolve the slug from the
	// host's leftmost label and proxy it.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		slug := tenantSlugFromHost(r.Host)
		if slug == "" {
			http.NotFound(w, r)
			return
		}
		d.ServeTenant(w, r, slug)
	})

	return r
}

// tenantSlugFromHost extracts the leftmost DNS label, which the gateway's
// naming scheme ({slug}.{domain}) uses as the tenant identifier.
func tenantSlugFromHost(host string) string {
	for i := 0; i < len(host); i++ {
		if host[i] == '.' || host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
